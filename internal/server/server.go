// Package server provides the HTTP API for Shoko.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/shoko/internal/books"
	"github.com/hyperjump/shoko/internal/chat"
	"github.com/hyperjump/shoko/internal/config"
	"github.com/hyperjump/shoko/internal/indexer"
	"github.com/hyperjump/shoko/internal/library"
)

// Server is the HTTP server for the Shoko API.
type Server struct {
	orchestrator *indexer.Orchestrator
	chat         *chat.Service
	source       library.Source
	books        *books.Client
	config       *config.ServerConfig
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies. books may be nil;
// the reviews endpoint then reports that lookups are not configured.
func NewServer(
	orchestrator *indexer.Orchestrator,
	chatService *chat.Service,
	source library.Source,
	booksClient *books.Client,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		orchestrator: orchestrator,
		chat:         chatService,
		source:       source,
		books:        booksClient,
		config:       cfg,
		logger:       logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/index", s.handleIndexStart)
	r.Delete("/api/v1/index", s.handleIndexCancel)
	r.Get("/api/v1/index/status", s.handleIndexStatus)
	r.Post("/api/v1/chat", s.handleChat)
	r.Get("/api/v1/items", s.handleItems)
	r.Get("/api/v1/reviews", s.handleReviews)
	r.Get("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
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
