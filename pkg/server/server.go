// Package server exposes the proxy over HTTP: the catch-all proxy route plus
// health, readiness and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hades72k/proxyhades/pkg/logging"
	"github.com/hades72k/proxyhades/pkg/metrics"
	"github.com/hades72k/proxyhades/pkg/proxy"
	"github.com/hades72k/proxyhades/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// readyTimeout bounds each readiness probe.
const readyTimeout = 2 * time.Second

// Config holds the server dependencies.
type Config struct {
	// Resolver answers proxied requests. Required.
	Resolver *proxy.Resolver

	// Limiter gates proxied requests. Nil disables rate limiting.
	Limiter *ratelimit.Limiter

	// Redis is pinged by /ready when set.
	Redis *redis.Client

	// CacheDir is checked by /ready when set.
	CacheDir string

	// AccessKeys enables access-key authentication when non-empty.
	AccessKeys []string

	Logger zerolog.Logger
}

// Server routes inbound HTTP requests.
type Server struct {
	resolver *proxy.Resolver
	redis    *redis.Client
	cacheDir string
	logger   zerolog.Logger
	router   chi.Router
}

// New creates a server and builds its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("resolver is required")
	}

	s := &Server{
		resolver: cfg.Resolver,
		redis:    cfg.Redis,
		cacheDir: cfg.CacheDir,
		logger:   cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Limiter != nil && cfg.Limiter.Enabled() {
			r.Use(rateLimit(cfg.Limiter))
		}
		if len(cfg.AccessKeys) > 0 {
			r.Use(requireAccessKey(cfg.Resolver.AuthParam(), cfg.AccessKeys))
		}
		r.Get("/*", s.handleProxy)
	})

	s.router = r
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed: redis")
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	if s.cacheDir != "" {
		if info, err := os.Stat(s.cacheDir); err != nil || !info.IsDir() {
			s.logger.Warn().Err(err).Str("dir", s.cacheDir).Msg("Readiness check failed: cache dir")
			http.Error(w, "cache dir unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	resp, err := s.resolver.Resolve(r.Context(), r)
	if err != nil {
		status := proxy.StatusCode(err)
		event := logger.Warn()
		if status == http.StatusInternalServerError {
			event = logger.Error()
		}
		event.Err(err).Int("status", status).Msg("Request failed")
		http.Error(w, err.Error(), status)
		return
	}

	setSource(r.Context(), string(resp.Source))
	if err := resp.Write(w); err != nil {
		logger.Debug().Err(err).Msg("Failed to write response")
	}
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting proxy server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down proxy server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
