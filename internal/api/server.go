package api

import (
	"time"

	"github.com/danmuck/heritagectl/internal/auth"
	"github.com/danmuck/heritagectl/internal/media"
	"github.com/danmuck/heritagectl/internal/observability"
	"github.com/danmuck/heritagectl/internal/services"
	"github.com/danmuck/heritagectl/internal/store"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	Version       = "0.1.0"
	HeaderSession = "X-Heritage-Session"
)

// Options wires the server's collaborators.
type Options struct {
	Name          string
	CorsOrigins   []string
	Store         store.Store
	Media         media.Store
	Registry      *services.Registry
	WriteToken    string
	RecentDefault int
	Now           func() time.Time
}

// Server owns the gin router and the contribution routes.
type Server struct {
	Name     string
	Appeared time.Time

	store    store.Store
	media    media.Store
	registry *services.Registry
	writes   auth.Validator
	admin    auth.Validator
	recent   int
	now      func() time.Time

	router *gin.Engine
}

func New(opts Options) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(opts.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  normalizeOrigins(opts.CorsOrigins),
		AllowMethods:  []string{"GET", "POST", "DELETE"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", HeaderSession},
		ExposeHeaders: []string{observability.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	r.MaxMultipartMemory = 8 << 20

	registry := opts.Registry
	if registry == nil {
		registry = services.NewRegistry()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	recent := opts.RecentDefault
	if recent <= 0 {
		recent = store.DefaultRecent
	}

	files := opts.Media
	if files.Root() == "" {
		files = media.NewStore("", 0)
	}

	var writes auth.Validator = auth.Open
	if opts.WriteToken != "" {
		writes = auth.StaticToken{Token: opts.WriteToken}
	}

	s := &Server{
		Name:     opts.Name,
		Appeared: now(),
		store:    opts.Store,
		media:    files,
		registry: registry,
		writes:   writes,
		admin:    auth.StaticToken{Token: opts.WriteToken},
		recent:   recent,
		now:      now,
		router:   r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() *gin.Engine {
	return s.router
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
