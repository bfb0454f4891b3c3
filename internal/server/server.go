// Package server provides the HTTP API for Smriti.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/smriti-ai/smriti/internal/config"
	"github.com/smriti-ai/smriti/internal/data"
	"github.com/smriti-ai/smriti/internal/embedding"
	"github.com/smriti-ai/smriti/internal/index"
	"github.com/smriti-ai/smriti/internal/ingest"
	"github.com/smriti-ai/smriti/internal/search"
)

// Server is the HTTP server for the Smriti API.
type Server struct {
	engine   *search.Engine
	ingester *ingest.Ingester
	porter   *data.Porter
	manager  *index.Manager
	embedder embedding.Embedder
	config   *config.Store
	logger   *zap.Logger
	server   *http.Server

	rebuildMu      sync.Mutex
	rebuildRunning bool
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	ingester *ingest.Ingester,
	porter *data.Porter,
	manager *index.Manager,
	embedder embedding.Embedder,
	cfg *config.Store,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:   engine,
		ingester: ingester,
		porter:   porter,
		manager:  manager,
		embedder: embedder,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/pages", s.handleIngestPage)
		r.Delete("/pages", s.handleClear)
		r.Post("/history", s.handleHistoryImport)
		r.Get("/history/jobs/{id}", s.handleHistoryJob)
		r.Get("/index/stats", s.handleStats)
		r.Post("/index/rebuild", s.handleRebuild)
		r.Get("/domains", s.handleDomains)
		r.Patch("/settings", s.handleUpdateSettings)
		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)
		r.Post("/embed", s.handleEmbed)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	cfg := s.config.Load()
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
