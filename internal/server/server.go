// Package server exposes the validator and the batch engine over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/optimode/mailprobe/batch"
	"github.com/optimode/mailprobe/internal/config"
)

// Deps are the services behind the routes.
type Deps struct {
	Validator batch.Validator
	Engine    *batch.Engine
	Logger    *zap.Logger
	// Instance is reported by /health and /api/stats.
	Instance string
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	cfg       config.ServerConfig
	validator batch.Validator
	engine    *batch.Engine
	logger    *zap.Logger
	instance  string
}

// New creates a new HTTP server instance
func New(cfg config.ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Standard chi middleware
	r.Use(middleware.RealIP)

	// RequestID → Logging → Recovery → body limit
	r.Use(requestID)
	r.Use(requestLogger(logger))
	r.Use(recovery(logger))
	r.Use(limitBody(cfg.MaxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "The requested resource was not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "The requested method is not allowed for this resource")
	})

	s := &Server{
		router:    r,
		cfg:       cfg,
		validator: deps.Validator,
		engine:    deps.Engine,
		logger:    logger,
		instance:  deps.Instance,
	}
	s.registerRoutes()
	return s
}

// Start listens until Shutdown is called. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.logger.Info("Starting HTTP server",
		zap.String("addr", addr),
		zap.String("instance", s.instance))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing
func (s *Server) Handler() http.Handler {
	return s.router
}
