package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/danmuck/heritagectl/internal/heritage"
	"github.com/danmuck/heritagectl/internal/media"
	"github.com/danmuck/heritagectl/internal/observability"
	"github.com/danmuck/heritagectl/internal/services"
	"github.com/danmuck/heritagectl/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	multipartSlack   = 1 << 20

	emptyHint = "No contributions yet. Be the first to share!"
)

type storyRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Region      string `json:"region"`
	User        string `json:"user"`
	Body        string `json:"body"`
}

type recipeRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Region      string   `json:"region"`
	User        string   `json:"user"`
	Ingredients []string `json:"ingredients"`
	Body        string   `json:"body"`
}

type browseItem struct {
	heritage.Contribution
	Heading string `json:"heading"`
}

func (s *Server) submitArtifact(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.media.MaxBytes()+multipartSlack)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(c, heritage.KindArtifact, fmt.Errorf("%w: %v", media.ErrTooLarge, err))
			return
		}
		s.fail(c, heritage.KindArtifact, fmt.Errorf("%w: artifact requires an image file", heritage.ErrInvalidContribution))
		return
	}

	contribution, err := heritage.NewContribution(heritage.KindArtifact, heritage.Submission{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Region:      c.PostForm("region"),
		User:        c.PostForm("user"),
		File:        header.Filename,
		Session:     c.GetHeader(HeaderSession),
	}, s.now())
	if err != nil {
		s.fail(c, heritage.KindArtifact, err)
		return
	}
	if header.Size > s.media.MaxBytes() {
		s.fail(c, heritage.KindArtifact, fmt.Errorf("%w: limit %d bytes", media.ErrTooLarge, s.media.MaxBytes()))
		return
	}

	f, err := header.Open()
	if err != nil {
		s.fail(c, heritage.KindArtifact, err)
		return
	}
	defer f.Close()
	stored, n, err := s.media.Save(header.Filename, contribution.ID, contribution.CreatedAt, f)
	if err != nil {
		s.fail(c, heritage.KindArtifact, err)
		return
	}
	observability.RecordUpload(n)
	contribution.File = stored

	if err := s.store.Add(c.Request.Context(), contribution); err != nil {
		if delErr := s.media.Delete(stored); delErr != nil {
			log.Warn().Str("file", stored).Err(delErr).Msg("media_cleanup_failed")
		}
		s.fail(c, heritage.KindArtifact, err)
		return
	}
	s.accepted(c, contribution)
}

func (s *Server) submitStory(c *gin.Context) {
	var req storyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, heritage.KindStory, fmt.Errorf("%w: %v", heritage.ErrInvalidContribution, err))
		return
	}
	s.create(c, heritage.KindStory, heritage.Submission{
		Title:       req.Title,
		Description: req.Description,
		Region:      req.Region,
		User:        req.User,
		Body:        req.Body,
		Session:     c.GetHeader(HeaderSession),
	})
}

func (s *Server) submitRecipe(c *gin.Context) {
	var req recipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, heritage.KindRecipe, fmt.Errorf("%w: %v", heritage.ErrInvalidContribution, err))
		return
	}
	s.create(c, heritage.KindRecipe, heritage.Submission{
		Title:       req.Title,
		Description: req.Description,
		Region:      req.Region,
		User:        req.User,
		Ingredients: req.Ingredients,
		Body:        req.Body,
		Session:     c.GetHeader(HeaderSession),
	})
}

func (s *Server) create(c *gin.Context, kind heritage.Kind, sub heritage.Submission) {
	contribution, err := heritage.NewContribution(kind, sub, s.now())
	if err != nil {
		s.fail(c, kind, err)
		return
	}
	if err := s.store.Add(c.Request.Context(), contribution); err != nil {
		s.fail(c, kind, err)
		return
	}
	s.accepted(c, contribution)
}

func (s *Server) accepted(c *gin.Context, contribution heritage.Contribution) {
	observability.RecordContribution(string(contribution.Kind), true)
	log.Info().
		Str("id", contribution.ID).
		Str("kind", string(contribution.Kind)).
		Str("region", contribution.Region).
		Msg("contribution_saved")
	c.JSON(http.StatusCreated, gin.H{
		"message":      heritage.ThankYou(contribution),
		"contribution": contribution,
	})
}

func (s *Server) fail(c *gin.Context, kind heritage.Kind, err error) {
	observability.RecordContribution(string(kind), false)
	respondError(c, err)
}

func (s *Server) listContributions(c *gin.Context) {
	q := store.Query{
		Region:  c.Query("region"),
		User:    c.Query("user"),
		Session: c.Query("session"),
		Limit:   defaultListLimit,
	}
	if raw := strings.TrimSpace(c.Query("kind")); raw != "" {
		kind, err := heritage.ParseKind(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		q.Kind = kind
	}
	var err error
	if q.Limit, err = intParam(c, "limit", defaultListLimit); err != nil {
		respondError(c, err)
		return
	}
	if q.Limit <= 0 || q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	if q.Offset, err = intParam(c, "offset", 0); err != nil {
		respondError(c, err)
		return
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	items, err := s.store.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"count":  len(items),
		"limit":  q.Limit,
		"offset": q.Offset,
	})
}

func (s *Server) recentContributions(c *gin.Context) {
	n, err := intParam(c, "n", s.recent)
	if err != nil {
		respondError(c, err)
		return
	}
	if n <= 0 {
		n = s.recent
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	items, err := s.store.Recent(c.Request.Context(), n)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]browseItem, 0, len(items))
	for _, item := range items {
		out = append(out, browseItem{Contribution: item, Heading: heritage.Heading(item)})
	}
	body := gin.H{"items": out}
	if len(out) == 0 {
		body["message"] = emptyHint
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) getContribution(c *gin.Context) {
	item, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, browseItem{Contribution: item, Heading: heritage.Heading(item)})
}

func (s *Server) deleteContribution(c *gin.Context) {
	ctx := c.Request.Context()
	item, err := s.store.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.store.Delete(ctx, item.ID); err != nil {
		respondError(c, err)
		return
	}
	if item.File != "" {
		if err := s.media.Delete(item.File); err != nil {
			log.Warn().Str("id", item.ID).Str("file", item.File).Err(err).Msg("media_delete_failed")
		}
	}
	log.Info().Str("id", item.ID).Str("kind", string(item.Kind)).Msg("contribution_deleted")
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": item.ID})
}

func (s *Server) stats(c *gin.Context) {
	counts, err := s.store.Count(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts, "total": total})
}

func (s *Server) serviceStatus(c *gin.Context) {
	name := c.Param("service")
	svc, ok := s.registry.Get(name)
	if !ok {
		respondError(c, services.ErrServiceNotFound)
		return
	}
	status, err := svc.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"service": name, "status": status})
}

func (s *Server) serviceAction(c *gin.Context) {
	out, err := s.registry.Execute(c.Request.Context(), c.Param("service"), c.Param("action"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "output": out})
}

var errBadParam = errors.New("invalid query parameter")

func intParam(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", errBadParam, name, raw)
	}
	return v, nil
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, heritage.ErrInvalidContribution),
		errors.Is(err, media.ErrUnsupportedType),
		errors.Is(err, errBadParam):
		return http.StatusBadRequest
	case errors.Is(err, media.ErrTooLarge), errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, services.ErrServiceNotFound),
		errors.Is(err, services.ErrActionNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
