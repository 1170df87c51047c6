package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mercator-hq/relay/pkg/cache"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/registry"
	"mercator-hq/relay/pkg/relay"
	"mercator-hq/relay/pkg/routing"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// healthRateLimit caps probe requests per second.
const healthRateLimit = 50

// Service serves routed requests. *relay.Service implements it.
type Service interface {
	Handle(ctx context.Context, req *relay.Request) (*relay.Response, error)
	Explain(ctx context.Context, req *relay.Request) (*relay.Explanation, error)
}

// ProviderSource lists registered providers. *registry.Registry implements
// it.
type ProviderSource interface {
	All() []registry.ModelProvider
}

// RoutingStats exposes routing counters. *routing.Engine implements it.
type RoutingStats interface {
	Stats() *routing.Stats
}

// CacheStats exposes cache counters. *cache.Cache implements it.
type CacheStats interface {
	Stats() cache.StatsSnapshot
}

// Options carries the server's collaborators. Only Service is required;
// endpoints whose source is nil answer 404.
type Options struct {
	Service   Service
	Providers ProviderSource
	Routing   RoutingStats
	Cache     CacheStats

	Health  *health.Checker
	Metrics http.Handler
	Version health.VersionInfo

	// MetricsPath serves Metrics. Default: "/metrics"
	MetricsPath string

	Logger *slog.Logger
}

// Server is the HTTP front end of the router.
type Server struct {
	cfg    config.ServerConfig
	opts   Options
	logger *slog.Logger

	handler    http.Handler
	httpServer *http.Server

	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
	shutdownOnce sync.Once
}

// New creates a server. It does not listen until Start is called.
func New(cfg config.ServerConfig, opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("server: service is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Health == nil {
		opts.Health = health.New(0)
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = config.DefaultMetricsPath
	}
	config.ApplyServerDefaults(&cfg)

	s := &Server{
		cfg:    cfg,
		opts:   opts,
		logger: opts.Logger.With("component", "server"),
	}
	s.handler = s.setupRoutes()
	return s, nil
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is done or
// Shutdown is called. A failure to bind is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("server is already running")
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.addr = ln.Addr()
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting relay server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown gracefully stops the server, waiting up to the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("relay server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(tracing.Middleware)
	r.Use(accessLog(s.logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", health.RateLimitedHandler(s.opts.Health.LivenessHandler(), healthRateLimit).ServeHTTP)
	r.Get("/ready", health.RateLimitedHandler(s.opts.Health.ReadinessHandler(), healthRateLimit).ServeHTTP)
	r.Get("/version", health.VersionHandler(s.opts.Version))
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, s.opts.MetricsPath, s.opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limitBody(s.cfg.MaxBodyBytes))
			r.Post("/route", s.handleRoute)
			r.Post("/route/explain", s.handleExplain)
		})
		r.Get("/providers", s.handleProviders)
		r.Get("/stats", s.handleStats)
	})

	return r
}
