package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/framelens/framelens/internal/config"
	"github.com/framelens/framelens/internal/detector"
	"github.com/framelens/framelens/internal/storage"
)

// Server wraps the HTTP surface: the analyze endpoint and, when
// mounted, the dashboard.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// ServerConfig wires the server's collaborators. Store and Dashboard
// are optional; NewPipeline defaults to the real download-and-extract
// pipeline and exists so tests can substitute one.
type ServerConfig struct {
	Config    *config.Config
	Detectors *detector.Cache
	Store     storage.Store
	Dashboard http.Handler
	Logger    *slog.Logger

	NewPipeline func(det detector.Detector) Pipeline
}

// NewServer builds the HTTP server.
func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf(":%d", cfg.Config.Port),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// Analyses run inside the request; no write timeout.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
