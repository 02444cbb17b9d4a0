package api

import (
	"context"
	"net/http"
	"time"

	"github.com/luminlabs/pulse/internal/config"
)

// Server is the public HTTP API: signal ingestion, score and notification
// reads, and webhook subscription management.
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer creates the API server over the given handlers.
func NewServer(cfg config.ServerConfig, h *Handlers, hc *HealthChecker) *Server {
	return &Server{
		config:  cfg,
		handler: SetupRoutes(cfg, h, hc),
	}
}

// ListenAndServe starts the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
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

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
