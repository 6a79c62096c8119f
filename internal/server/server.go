// Package server provides the HTTP API for Dummi.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dummi-ai/dummi/internal/config"
	"github.com/dummi-ai/dummi/internal/recommend"
	"github.com/dummi-ai/dummi/internal/storage"
)

// Server is the HTTP server for the Dummi API.
type Server struct {
	engine  *recommend.Engine
	trainer *recommend.Trainer
	storage storage.Storage
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *recommend.Engine,
	trainer *recommend.Trainer,
	storage storage.Storage,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:  engine,
		trainer: trainer,
		storage: storage,
		config:  cfg,
		logger:  logger,
	}
}

// Router builds the API router. Exposed separately from Start for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users", s.handleCreateUser)
		r.Get("/users", s.handleListUsers)
		r.Get("/users/{id}", s.handleGetUser)
		r.Put("/users/{id}", s.handleUpdateUser)

		r.Post("/content", s.handleCreateContent)
		r.Get("/content", s.handleListContent)
		r.Get("/content/{id}", s.handleGetContent)
		r.Get("/content/category/{category}", s.handleListContentByCategory)

		r.Post("/recommendations", s.handleRecommend)
		r.Post("/recommendations/interact", s.handleInteract)
		r.Post("/recommendations/feedback", s.handleFeedback)

		r.Post("/training/train", s.handleTrain)
		r.Get("/training/status", s.handleTrainingStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
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
