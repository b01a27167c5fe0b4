// Package api exposes the evaluation engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openrisk/kestrel/internal/batch"
	"github.com/openrisk/kestrel/internal/decision"
	"github.com/openrisk/kestrel/internal/domain"
	"github.com/openrisk/kestrel/internal/metrics"
	"github.com/openrisk/kestrel/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, composer *decision.Composer, coordinator *batch.Coordinator, store *rules.Store, repo domain.Repository, cache domain.Cache, bus domain.EventBus, collector *metrics.Collector, version string) *Server {
	handler := NewHandler(composer, coordinator, store, repo, cache, bus, collector, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Operational endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if collector != nil {
		router.Handle("/metrics", collector.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		// Evaluation
		r.Post("/fraud/detect", handler.Detect)
		r.Post("/fraud/detect/batch", handler.DetectBatch)
		r.Post("/fraud/report", handler.Report)

		// Rule management
		r.Get("/rules", handler.ListRules)
		r.Post("/rules", handler.CreateRule)
		r.Get("/rules/{id}", handler.GetRule)
		r.Put("/rules/{id}", handler.UpdateRule)
		r.Delete("/rules/{id}", handler.DeleteRule)
		r.Put("/rules/{id}/toggle", handler.ToggleRule)

		// Retrieval
		r.Get("/decisions/{id}", handler.GetDecision)
		r.Get("/transactions/{id}", handler.GetTransaction)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
