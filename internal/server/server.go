// Package server provides the HTTP API for Bukken: spreadsheet uploads,
// unit search, and unit lookup.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/bukken/internal/config"
	"github.com/hyperjump/bukken/internal/index"
	"github.com/hyperjump/bukken/internal/ingest"
	"github.com/hyperjump/bukken/internal/store"
)

// Server is the HTTP server for the Bukken API.
type Server struct {
	ingest *ingest.Service
	store  store.Store
	index  index.Index
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	ing *ingest.Service,
	st store.Store,
	idx index.Index,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		ingest: ing,
		store:  st,
		index:  idx,
		config: cfg,
		logger: logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/uploads", s.handleUpload)
	r.Get("/api/v1/uploads", s.handleListUploads)
	r.Post("/api/v1/search", s.handleSearch)
	r.Get("/api/v1/units", s.handleListUnits)
	r.Get("/api/v1/units/{key}", s.handleGetUnit)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
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
