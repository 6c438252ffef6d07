// Package server provides the gateway's HTTP surface: the two OpenAI-dialect
// completion endpoints, health, and metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"gatehouse-hq/gatehouse/pkg/chat"
	"gatehouse-hq/gatehouse/pkg/config"
	"gatehouse-hq/gatehouse/pkg/telemetry/metrics"
)

// Server is the gateway's HTTP server.
type Server struct {
	config     config.ServerConfig
	core       *chat.Core
	metrics    *metrics.Metrics
	metricPath string

	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	logger       *slog.Logger
}

// Options configures optional server surfaces.
type Options struct {
	// Metrics exposes the Prometheus endpoint when non-nil
	Metrics *metrics.Metrics

	// MetricsPath overrides the default /metrics path
	MetricsPath string
}

// New creates a gateway server over the request pipeline.
func New(cfg config.ServerConfig, core *chat.Core, opts Options) *Server {
	path := opts.MetricsPath
	if path == "" {
		path = config.DefaultMetricsPath
	}
	return &Server{
		config:       cfg,
		core:         core,
		metrics:      opts.Metrics,
		metricPath:   path,
		shutdownChan: make(chan struct{}),
		logger:       slog.Default().With("component", "server"),
	}
}

// Start starts the HTTP server and blocks until shutdown by signal, context
// cancellation, or Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.Routes(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting gateway server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// Routes builds the gateway's handler. Exposed so tests can drive the
// surface through httptest without binding a port.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", s.handleCompletion("chat_completions"))
	mux.HandleFunc("/v1/responses", s.handleCompletion("responses"))
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle(s.metricPath, s.metrics.Handler())
	}
	return mux
}

// Shutdown gracefully drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		s.isRunning = false
		s.mu.Unlock()
		if !running || s.httpServer == nil {
			return
		}

		s.logger.Info("initiating graceful shutdown",
			"timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("graceful shutdown failed: %w", err)
			return
		}
		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// Stop requests shutdown from outside the Start loop.
func (s *Server) Stop() {
	select {
	case <-s.shutdownChan:
	default:
		close(s.shutdownChan)
	}
}
