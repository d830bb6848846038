package warmup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hades72k/proxyhades/pkg/proxy"
	"github.com/rs/zerolog/log"
)

// Config holds warmer configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel resolves.
	MaxConcurrency int

	// Timeout bounds each resolve.
	Timeout time.Duration
}

// DefaultConfig returns a configuration gentle on upstream hosts.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// Resolver is the part of the proxy the warmer drives.
type Resolver interface {
	Resolve(ctx context.Context, req *http.Request) (*proxy.Response, error)
}

// Result is the outcome for one path.
type Result struct {
	Path       string
	StatusCode int
	Source     proxy.Source
	Err        error
}

// Summary aggregates a Warm run.
type Summary struct {
	Total  int
	Cached int // paths now held by the caches (status 200)
	Failed int // rejected targets, upstream failures and non-200 statuses
}

// Warmer resolves paths in parallel using a worker pool.
type Warmer struct {
	resolver Resolver
	config   Config
}

// New creates a warmer.
func New(resolver Resolver, config Config) *Warmer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Warmer{resolver: resolver, config: config}
}

// Warm resolves every path and returns once all are done or ctx is canceled.
// The returned error joins the per-path failures.
func (w *Warmer) Warm(ctx context.Context, paths []string) (Summary, error) {
	start := time.Now()
	summary := Summary{Total: len(paths)}
	if len(paths) == 0 {
		return summary, nil
	}

	log.Info().
		Int("paths", len(paths)).
		Int("workers", w.config.MaxConcurrency).
		Msg("Starting cache warmup")

	queue := make(chan string)
	results := make(chan Result, w.config.MaxConcurrency)

	var wg sync.WaitGroup
	for i := 0; i < w.config.MaxConcurrency; i++ {
		wg.Add(1)
		go w.worker(ctx, queue, results, &wg, i)
	}

	go func() {
		defer close(queue)
		for _, p := range paths {
			select {
			case queue <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var errs []error
	for result := range results {
		if result.Err == nil && result.StatusCode == http.StatusOK {
			summary.Cached++
			continue
		}

		summary.Failed++
		err := result.Err
		if err == nil {
			err = fmt.Errorf("status %d", result.StatusCode)
		}
		errs = append(errs, fmt.Errorf("%s: %w", result.Path, err))
		log.Warn().
			Err(err).
			Str("path", result.Path).
			Msg("Warmup path failed")
	}

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}

	log.Info().
		Int("cached", summary.Cached).
		Int("failed", summary.Failed).
		Int("total", summary.Total).
		Dur("duration", time.Since(start)).
		Msg("Cache warmup complete")

	return summary, errors.Join(errs...)
}

// worker resolves paths from the queue.
func (w *Warmer) worker(ctx context.Context, queue <-chan string, results chan<- Result, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	resolved := 0

	for path := range queue {
		results <- w.resolve(ctx, path)
		resolved++
	}

	log.Debug().
		Int("worker_id", workerID).
		Int("paths_resolved", resolved).
		Msg("Warmup worker completed")
}

func (w *Warmer) resolve(ctx context.Context, path string) Result {
	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Result{Path: path, Err: &proxy.TargetError{Target: path, Err: proxy.ErrMalformedTarget}}
	}

	resp, err := w.resolver.Resolve(ctx, req)
	if err != nil {
		return Result{Path: path, Err: err}
	}
	return Result{Path: path, StatusCode: resp.StatusCode, Source: resp.Source}
}
