package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/heritagectl/internal/heritage"
	"github.com/danmuck/heritagectl/internal/media"
	"github.com/danmuck/heritagectl/internal/services"
	"github.com/danmuck/heritagectl/internal/store"
	"github.com/danmuck/heritagectl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 14, 9, 30, 0, 0, time.UTC)

type harness struct {
	srv   *Server
	store *store.MemoryStore
	files media.Store
}

func newHarness(t *testing.T, token string, maxBytes int64) harness {
	t.Helper()
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	files := media.NewStore(filepath.Join(t.TempDir(), "media"), maxBytes)
	registry := services.NewRegistry()
	registry.Register(&services.Catalog{Store: st})
	registry.Register(&services.Media{Files: files, Store: st})
	srv := New(Options{
		Name:       "heritage-test",
		Store:      st,
		Media:      files,
		Registry:   registry,
		WriteToken: token,
		Now:        func() time.Time { return fixedNow },
	})
	return harness{srv: srv, store: st, files: files}
}

func (h harness) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rr, req)
	var body map[string]any
	if rr.Body.Len() > 0 && strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	}
	return rr, body
}

func jsonRequest(method, path string, payload any) *http.Request {
	raw, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func artifactRequest(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/contributions/artifacts", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHealthAndReady(t *testing.T) {
	h := newHarness(t, "", 0)
	rr, body := h.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "heritage-test", body["service"])

	rr, body = h.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["ready"])
}

func TestSubmitArtifactStoresFileAndContribution(t *testing.T) {
	h := newHarness(t, "", 0)
	req := artifactRequest(t, map[string]string{
		"title":       "Kondapalli Toys",
		"description": "Softwood figurines",
		"region":      "Krishna",
	}, "toys.jpg", []byte("jpeg-bytes"))
	req.Header.Set(HeaderSession, "sess-9")

	rr, body := h.do(t, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "Thank you for contributing Kondapalli Toys!", body["message"])

	contribution := body["contribution"].(map[string]any)
	id := contribution["id"].(string)
	assert.Equal(t, "artifact", contribution["kind"])
	assert.Equal(t, "Anonymous", contribution["user"])
	assert.Equal(t, "2024-01-14", contribution["date"])
	assert.Equal(t, "sess-9", contribution["session"])
	assert.Equal(t, "2024/01/"+id+".jpg", contribution["file"])

	keys, err := h.files.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024/01/" + id + ".jpg"}, keys)
}

func TestSubmitArtifactRequiresImage(t *testing.T) {
	h := newHarness(t, "", 0)

	rr, body := h.do(t, artifactRequest(t, map[string]string{"title": "No file"}, "", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, body["error"], "image file")

	rr, _ = h.do(t, artifactRequest(t, nil, "scan.gif", []byte("gif")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	keys, err := h.files.List("")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSubmitArtifactTooLarge(t *testing.T) {
	h := newHarness(t, "", 8)
	rr, _ := h.do(t, artifactRequest(t, nil, "big.png", bytes.Repeat([]byte("x"), 16)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	counts, err := h.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, counts[heritage.KindArtifact])
}

func TestSubmitStoryAndRecipe(t *testing.T) {
	h := newHarness(t, "", 0)

	rr, body := h.do(t, jsonRequest(http.MethodPost, "/contributions/stories", map[string]any{
		"title": "Tenali Rama and the Cats", "region": "Tenali", "body": "Long ago...",
	}))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "story", body["contribution"].(map[string]any)["kind"])

	rr, _ = h.do(t, jsonRequest(http.MethodPost, "/contributions/stories", map[string]any{"title": "empty"}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = h.do(t, jsonRequest(http.MethodPost, "/contributions/recipes", map[string]any{
		"title":       "Pulihora",
		"ingredients": []string{"rice", "tamarind", "peanuts"},
		"body":        "Temper and mix.",
	}))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	recipe := body["contribution"].(map[string]any)
	assert.Equal(t, "Unknown", recipe["region"])
	assert.Len(t, recipe["ingredients"], 3)

	req := httptest.NewRequest(http.MethodPost, "/contributions/recipes", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rr, _ = h.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRecentAndListing(t *testing.T) {
	h := newHarness(t, "", 0)

	rr, body := h.do(t, httptest.NewRequest(http.MethodGet, "/contributions/recent", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, emptyHint, body["message"])
	assert.Empty(t, body["items"])

	for _, title := range []string{"one", "two", "three", "four"} {
		rr, _ := h.do(t, jsonRequest(http.MethodPost, "/contributions/stories", map[string]any{
			"title": title, "region": "Warangal", "body": "b",
		}))
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr, body = h.do(t, httptest.NewRequest(http.MethodGet, "/contributions/recent", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	items := body["items"].([]any)
	require.Len(t, items, 3)
	assert.Equal(t, "two from Warangal", items[0].(map[string]any)["heading"])
	assert.Nil(t, body["message"])

	rr, body = h.do(t, httptest.NewRequest(http.MethodGet, "/contributions?kind=stories&limit=2&offset=1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	listed := body["items"].([]any)
	require.Len(t, listed, 2)
	assert.Equal(t, "two", listed[0].(map[string]any)["title"])

	rr, _ = h.do(t, httptest.NewRequest(http.MethodGet, "/contributions?kind=poem", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr, _ = h.do(t, httptest.NewRequest(http.MethodGet, "/contributions?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = h.do(t, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 4, body["total"])
}

func TestGetAndDeleteRequireToken(t *testing.T) {
	h := newHarness(t, "secret", 0)

	rr, _ := h.do(t, jsonRequest(http.MethodPost, "/contributions/stories", map[string]any{"body": "b"}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := jsonRequest(http.MethodPost, "/contributions/stories", map[string]any{"body": "b"})
	req.Header.Set("Authorization", "Bearer secret")
	rr, body := h.do(t, req)
	require.Equal(t, http.StatusCreated, rr.Code)
	id := body["contribution"].(map[string]any)["id"].(string)

	rr, body = h.do(t, httptest.NewRequest(http.MethodGet, "/contributions/"+id, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Untitled from Unknown", body["heading"])

	rr, _ = h.do(t, httptest.NewRequest(http.MethodDelete, "/contributions/"+id, nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	del := httptest.NewRequest(http.MethodDelete, "/contributions/"+id, nil)
	del.Header.Set("Authorization", "Bearer secret")
	rr, _ = h.do(t, del)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, _ = h.do(t, httptest.NewRequest(http.MethodGet, "/contributions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	h := newHarness(t, "", 0)
	rr, _ := h.do(t, httptest.NewRequest(http.MethodGet, "/admin/services", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminServiceActions(t *testing.T) {
	h := newHarness(t, "secret", 0)
	authed := func(method, path string) *http.Request {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer secret")
		return req
	}

	rr, body := h.do(t, authed(http.MethodGet, "/admin/services"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, body["services"], 2)

	rr, body = h.do(t, authed(http.MethodPost, "/admin/services/catalog/actions/count"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "artifact=0\nstory=0\nrecipe=0\n", body["output"])

	rr, _ = h.do(t, authed(http.MethodPost, "/admin/services/catalog/actions/explode"))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, body = h.do(t, authed(http.MethodGet, "/admin/services/media"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "media", body["service"])

	rr, _ = h.do(t, authed(http.MethodGet, "/admin/services/nope"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
