package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
	"github.com/custodia-labs/applicant-sync/internal/core/ports/driven"
	"github.com/custodia-labs/applicant-sync/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     chi.Router
	version    string
	logger     *slog.Logger

	shutdownTimeout time.Duration

	syncOrchestrator driving.SyncOrchestrator
	authAdapter      driven.AuthAdapter

	// Readiness checks by dependency name
	checks map[string]Pinger
}

// Config holds server configuration
type Config struct {
	Host            string
	Port            int
	Version         string
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ShutdownTimeout: 30 * time.Second,
	}
}

// NewServer creates a new HTTP server.
// checks maps dependency names to pingers consulted by /ready; nil entries are skipped.
func NewServer(
	cfg Config,
	syncOrchestrator driving.SyncOrchestrator,
	authAdapter driven.AuthAdapter,
	checks map[string]Pinger,
) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		router:           chi.NewRouter(),
		version:          cfg.Version,
		logger:           logger,
		syncOrchestrator: syncOrchestrator,
		authAdapter:      authAdapter,
		checks:           make(map[string]Pinger, len(checks)),
	}
	for name, p := range checks {
		if p != nil {
			s.checks[name] = p
		}
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // manual batches run synchronously
		IdleTimeout:  60 * time.Second,
	}
	s.shutdownTimeout = cfg.ShutdownTimeout

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.authAdapter)

	s.router.Use(RequestLogger(s.logger))
	s.router.Use(MetricsMiddleware())
	s.router.Use(NewRecoveryMiddleware(s.logger).Handler)

	// Health endpoints (no auth)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Get("/version", s.handleVersion)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/swagger/doc.json", s.handleSwaggerDoc)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		r.With(authMiddleware.RequireScope(domain.ScopeSyncTrigger)).
			Post("/sync", s.handleSync)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
