// Package api implements the bessd-sim HTTP endpoint: health, a read-only
// JSON view of the pipeline and Prometheus metrics.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psaab/bessctl/pkg/engine"
)

// Config configures the API server.
type Config struct {
	Addr      string
	Engine    engine.Engine
	Collector prometheus.Collector // registered on /metrics when set
	Auth      *AuthConfig          // nil disables authentication
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	eng        engine.Engine
	startTime  time.Time
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	s := &Server{
		eng:       cfg.Engine,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)

	// Prometheus metrics with isolated registry
	registry := prometheus.NewRegistry()
	if cfg.Collector != nil {
		registry.MustRegister(cfg.Collector)
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /api/v1/status", s.statusHandler)
	mux.HandleFunc("GET /api/v1/ports", s.portsHandler)
	mux.HandleFunc("GET /api/v1/ports/{name}", s.portStatsHandler)
	mux.HandleFunc("GET /api/v1/modules", s.modulesHandler)
	mux.HandleFunc("GET /api/v1/modules/{name}", s.moduleInfoHandler)

	var handler http.Handler = mux
	if cfg.Auth != nil {
		handler = authMiddleware(*cfg.Auth, mux)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves on lis and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API server listening", "addr", lis.Addr().String())
		if err := s.httpServer.Serve(lis); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
