// Package server exposes the gateway over HTTP: the /api/v1 dispatch
// surface, health endpoints and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prilive-com/relay/dispatch"
	"github.com/prilive-com/relay/health"
	"github.com/prilive-com/relay/internal/metrics"
)

// Server is the gateway's HTTP front end.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
	aggregator *health.Aggregator
	metrics    *metrics.Metrics
	httpServer *http.Server
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics attaches Prometheus instrumentation and enables /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates the HTTP front end over the dispatcher and aggregator.
func NewServer(cfg Config, dispatcher *dispatch.Dispatcher, aggregator *health.Aggregator, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		aggregator: aggregator,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/services/health", s.handleServicesHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.HandleFunc("/api/v1/{service}", s.handleDispatch)
	r.HandleFunc("/api/v1/{service}/*", s.handleDispatch)

	return r
}

// Handler returns the fully-routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the server until ctx is cancelled or ListenAndServe fails,
// then drains in-flight requests within the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
