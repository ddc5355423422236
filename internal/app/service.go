// Package app assembles the heritage service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/heritagectl/internal/api"
	"github.com/danmuck/heritagectl/internal/config"
	"github.com/danmuck/heritagectl/internal/media"
	"github.com/danmuck/heritagectl/internal/services"
	"github.com/danmuck/heritagectl/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Service owns the store, media root, and HTTP server for one process.
type Service struct {
	cfg      config.Config
	store    store.Store
	media    media.Store
	registry *services.Registry
	server   *api.Server
}

// NewService opens the configured store and wires the HTTP server.
func NewService(ctx context.Context, cfg config.Config) (*Service, error) {
	config.Normalize(&cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, store.Options{Driver: cfg.Store.Driver, Path: cfg.Store.Path})
	if err != nil {
		return nil, err
	}
	files := media.NewStore(cfg.Media.Root, cfg.Media.MaxUploadBytes)

	registry := services.NewRegistry()
	registry.Register(&services.Catalog{Store: st})
	registry.Register(&services.Media{Files: files, Store: st})

	gin.SetMode(gin.ReleaseMode)
	srv := api.New(api.Options{
		Name:          cfg.Name,
		CorsOrigins:   cfg.CorsOrigins,
		Store:         st,
		Media:         files,
		Registry:      registry,
		WriteToken:    cfg.Auth.WriteToken,
		RecentDefault: cfg.Browse.RecentDefault,
	})
	return &Service{
		cfg:      cfg,
		store:    st,
		media:    files,
		registry: registry,
		server:   srv,
	}, nil
}

func (s *Service) Store() store.Store {
	return s.store
}

func (s *Service) Handler() http.Handler {
	return s.server.Handler()
}

// Run serves on the configured address until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then drains and closes the store.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().
		Str("service", s.cfg.Name).
		Str("addr", ln.Addr().String()).
		Str("store", s.cfg.Store.Driver).
		Bool("write_token", s.cfg.Auth.WriteToken != "").
		Msg("heritage_listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Str("service", s.cfg.Name).Msg("heritage_shutdown")
		return httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if closeErr := s.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Close releases the store without serving.
func (s *Service) Close() error {
	return s.store.Close()
}
