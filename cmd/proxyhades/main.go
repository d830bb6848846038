package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hades72k/proxyhades/pkg/cache"
	"github.com/hades72k/proxyhades/pkg/client"
	"github.com/hades72k/proxyhades/pkg/config"
	"github.com/hades72k/proxyhades/pkg/logging"
	"github.com/hades72k/proxyhades/pkg/proxy"
	"github.com/hades72k/proxyhades/pkg/ratelimit"
	"github.com/hades72k/proxyhades/pkg/server"
	"github.com/hades72k/proxyhades/pkg/warmup"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.Log.Level),
		Pretty:  cfg.Log.Pretty,
		Output:  os.Stderr,
		File:    cfg.Log.File,
		Version: version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Proxy stopped with error")
		closer.Close()
		os.Exit(1)
	}
}

// run wires every component and serves until ctx is canceled. Pending disk
// writes are flushed before it returns.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	app, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	logger.Info().
		Str("listen", cfg.Listen).
		Str("cache_dir", cfg.Cache.Dir).
		Dur("ttl", cfg.Cache.TTL).
		Int("memory_max_entries", cfg.Cache.MemoryMaxEntries).
		Strs("allowed_hosts", cfg.AllowedHosts).
		Bool("rate_limit", cfg.RateLimitEnabled()).
		Bool("access_keys", len(cfg.AccessKeys) > 0).
		Msg("Proxy configured")

	if len(cfg.Cache.WarmPaths) > 0 {
		go warm(ctx, app.resolver, cfg.Cache.WarmPaths, logger)
	}

	return app.server.ListenAndServe(ctx, cfg.Listen, cfg.ShutdownTimeout)
}

// warm pre-populates the caches with paths and logs the outcome.
func warm(ctx context.Context, resolver warmup.Resolver, paths []string, logger zerolog.Logger) warmup.Summary {
	summary, err := warmup.New(resolver, warmup.DefaultConfig()).Warm(ctx, paths)

	event := logger.Info()
	if err != nil {
		event = logger.Warn().Err(err)
	}
	event.
		Int("total", summary.Total).
		Int("cached", summary.Cached).
		Int("failed", summary.Failed).
		Msg("Cache warmup finished")
	return summary
}

type app struct {
	server   *server.Server
	resolver *proxy.Resolver
	writes   *cache.WriteQueue
	redis    *redis.Client
}

func (a *app) close() {
	a.writes.Close()
	if a.redis != nil {
		a.redis.Close()
	}
}

func build(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.Cache.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	memory, err := cache.NewMemory(cache.MemoryConfig{
		MaxEntries: cfg.Cache.MemoryMaxEntries,
		TTL:        cfg.Cache.TTL,
	})
	if err != nil {
		return nil, err
	}

	disk, err := cache.NewDisk(cache.DiskConfig{
		Dir:    cfg.Cache.Dir,
		TTL:    cfg.Cache.TTL,
		Logger: logging.NewLogger("disk-cache"),
	})
	if err != nil {
		return nil, err
	}

	forwarder, err := client.New(client.Config{
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.Upstream.Timeout,
		MaxBodyBytes: client.DefaultMaxBodyBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("create forwarder: %w", err)
	}

	writes := cache.NewWriteQueue(disk, cache.WriteQueueConfig{
		Workers: cfg.Cache.WriteWorkers,
		Size:    cfg.Cache.WriteQueueSize,
	}, logging.NewLogger("write-queue"))

	resolver, err := proxy.New(proxy.Config{
		Memory:              memory,
		Disk:                disk,
		Writes:              writes,
		Fetcher:             forwarder,
		AllowedHosts:        cfg.AllowedHosts,
		AuthParam:           cfg.AuthParam,
		DefaultCacheControl: cfg.Cache.DefaultCacheControl,
		CoalesceFetches:     cfg.Cache.CoalesceFetches,
	})
	if err != nil {
		writes.Close()
		return nil, fmt.Errorf("create resolver: %w", err)
	}

	a := &app{resolver: resolver, writes: writes}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RateLimit.RedisURL)
		if err != nil {
			writes.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		limiter = ratelimit.NewLimiter(a.redis, ratelimit.Config{
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window,
		}, logging.NewLogger("ratelimit"))
	}

	srv, err := server.New(server.Config{
		Resolver:   resolver,
		Limiter:    limiter,
		Redis:      a.redis,
		CacheDir:   cfg.Cache.Dir,
		AccessKeys: cfg.AccessKeys,
		Logger:     logger.With().Str("component", "server").Logger(),
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.server = srv

	return a, nil
}
