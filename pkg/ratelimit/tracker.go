package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limiting.
var (
	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxyhades_rate_limit_blocks_total",
		Help: "Total number of requests rejected by the rate limiter",
	})

	rateLimitErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxyhades_rate_limit_errors_total",
		Help: "Total number of rate limit checks that failed open because Redis was unavailable",
	})
)

// Clock returns the current time.
type Clock func() time.Time

// Config configures a Limiter.
type Config struct {
	// Requests is the per-client budget for one window. Zero or less disables
	// limiting.
	Requests int

	// Window is the length of one counting window (default: DefaultWindow).
	Window time.Duration

	// KeyPrefix namespaces Redis keys (default: KeyPrefix).
	KeyPrefix string

	// Now overrides the clock (default: time.Now).
	Now Clock
}

// Limiter enforces a fixed-window request budget per client.
//
// Counters live in Redis so that every proxy instance sharing the server
// sees the same budget. When Redis cannot be reached the request is allowed.
type Limiter struct {
	redis  *redis.Client
	cfg    Config
	logger zerolog.Logger
}

// NewLimiter creates a limiter. A nil client disables limiting.
func NewLimiter(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = KeyPrefix
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{
		redis:  redisClient,
		cfg:    cfg,
		logger: logger,
	}
}

// Enabled reports whether requests are counted at all.
func (l *Limiter) Enabled() bool {
	return l.redis != nil && l.cfg.Requests > 0
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.cfg.Window
}

// Allow counts one request for clientID and reports whether it fits in the
// current window. On a Redis failure the returned decision allows the request
// and the error is returned for logging.
func (l *Limiter) Allow(ctx context.Context, clientID string) (*Decision, error) {
	now := l.cfg.Now()
	start := windowStart(now, l.cfg.Window)
	decision := &Decision{
		Allowed: true,
		Limit:   l.cfg.Requests,
		ResetAt: start.Add(l.cfg.Window),
	}

	if !l.Enabled() {
		return decision, nil
	}

	key := windowKey(l.cfg.KeyPrefix, clientID, start)

	pipe := l.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.cfg.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		rateLimitErrorsTotal.Inc()
		l.logger.Warn().
			Err(err).
			Str("client", clientID).
			Msg("Rate limit backend unavailable, allowing request")
		return decision, fmt.Errorf("count request in redis: %w", err)
	}

	decision.Count = incr.Val()
	if decision.Count > int64(l.cfg.Requests) {
		decision.Allowed = false
		rateLimitBlocksTotal.Inc()
		l.logger.Info().
			Str("client", clientID).
			Int64("count", decision.Count).
			Int("limit", l.cfg.Requests).
			Time("reset_at", decision.ResetAt).
			Msg("Rate limit exceeded - blocking request")
	}

	return decision, nil
}
