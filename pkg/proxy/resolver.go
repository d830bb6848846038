// Package proxy implements the cache orchestrator: for each inbound request
// it validates the target, then serves from memory, disk or upstream in that
// order and fills the tiers after a successful fetch.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hades72k/proxyhades/pkg/cache"
	"github.com/hades72k/proxyhades/pkg/client"
	"github.com/hades72k/proxyhades/pkg/logging"
	"golang.org/x/sync/singleflight"
)

// Fetcher performs the upstream call on a cache miss.
type Fetcher interface {
	Fetch(ctx context.Context, target *url.URL, in *http.Request) (*client.Result, error)
}

// Source records which layer produced a response.
type Source string

const (
	SourceMemory      Source = "memory"
	SourceDisk        Source = "disk"
	SourceUpstream    Source = "upstream"
	SourcePassThrough Source = "pass-through"
)

// Response is the outcome of Resolve. It may be shared between callers and
// must not be modified.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Source     Source
	Key        string
}

// Write sends the response to w.
func (resp *Response) Write(w http.ResponseWriter) error {
	cache.WriteHeaders(w, resp.Headers, len(resp.Body))
	w.WriteHeader(resp.StatusCode)
	_, err := w.Write(resp.Body)
	return err
}

// Config holds the resolver dependencies and policy.
type Config struct {
	Memory  *cache.Memory
	Disk    *cache.Disk
	Writes  *cache.WriteQueue
	Fetcher Fetcher

	// AllowedHosts is the upstream allow-list.
	AllowedHosts []string

	// AuthParam is excluded from cache keys and upstream URLs.
	AuthParam string

	// DefaultCacheControl is added to cached responses lacking cache-control.
	// Empty means "public, max-age=<memory TTL in seconds>".
	DefaultCacheControl string

	// CoalesceFetches shares one upstream fetch between concurrent misses
	// for the same key.
	CoalesceFetches bool
}

// Resolver is the cache orchestrator.
type Resolver struct {
	memory  *cache.Memory
	disk    *cache.Disk
	writes  *cache.WriteQueue
	fetcher Fetcher

	allow               *AllowList
	authParam           string
	defaultCacheControl string

	group *singleflight.Group
}

// New creates a resolver.
func New(cfg Config) (*Resolver, error) {
	switch {
	case cfg.Memory == nil:
		return nil, fmt.Errorf("memory cache is required")
	case cfg.Disk == nil:
		return nil, fmt.Errorf("disk cache is required")
	case cfg.Writes == nil:
		return nil, fmt.Errorf("write queue is required")
	case cfg.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	}

	if cfg.AuthParam == "" {
		cfg.AuthParam = cache.DefaultAuthParam
	}
	if cfg.DefaultCacheControl == "" {
		cfg.DefaultCacheControl = fmt.Sprintf("public, max-age=%d", int(cfg.Memory.TTL().Seconds()))
	}

	r := &Resolver{
		memory:              cfg.Memory,
		disk:                cfg.Disk,
		writes:              cfg.Writes,
		fetcher:             cfg.Fetcher,
		allow:               NewAllowList(cfg.AllowedHosts),
		authParam:           cfg.AuthParam,
		defaultCacheControl: cfg.DefaultCacheControl,
	}
	if cfg.CoalesceFetches {
		r.group = &singleflight.Group{}
	}
	return r, nil
}

// AllowList returns the upstream allow-list.
func (r *Resolver) AllowList() *AllowList {
	return r.allow
}

// AuthParam returns the query parameter excluded from cache keys.
func (r *Resolver) AuthParam() string {
	return r.authParam
}

// Resolve answers req from memory, disk or upstream, in that order.
//
// Targets that are malformed or not allow-listed fail with a *TargetError
// before either tier is consulted. Upstream transport failures return the
// forwarder's *client.UpstreamError and are never cached. Non-200 upstream
// statuses are returned as pass-through responses and are never cached.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*Response, error) {
	target, err := ParseTarget(req, r.authParam)
	if err != nil {
		return nil, err
	}
	if !r.allow.Allowed(target.Host) {
		return nil, &TargetError{Target: target.Host, Err: ErrHostNotAllowed}
	}

	key := cache.DeriveKey(req, r.authParam)
	logger := logging.FromContext(ctx).With().
		Str("component", "resolver").
		Str("key", key).
		Logger()

	if entry, ok := r.memory.Get(key); ok {
		cache.CacheHits.WithLabelValues(cache.LayerMemory).Inc()
		logger.Debug().Msg("Memory cache hit")
		return hit(key, entry, SourceMemory), nil
	}

	if entry, ok := r.disk.Read(key); ok {
		cache.CacheHits.WithLabelValues(cache.LayerDisk).Inc()
		r.memory.Put(key, entry.Headers, entry.Body)
		logger.Debug().Msg("Disk cache hit, memory warmed")
		return hit(key, entry, SourceDisk), nil
	}

	cache.CacheMisses.Inc()
	logger.Debug().Str("target", target.String()).Msg("Cache miss, fetching upstream")

	if r.group == nil {
		return r.fetchAndStore(ctx, key, target, req)
	}

	// The shared fetch outlives any single caller; the forwarder timeout
	// still bounds it.
	v, err, shared := r.group.Do(key, func() (interface{}, error) {
		return r.fetchAndStore(context.WithoutCancel(ctx), key, target, req)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debug().Msg("Upstream fetch shared with concurrent request")
	}
	return v.(*Response), nil
}

// fetchAndStore performs the upstream fetch and, on 200, fills both tiers.
// The disk write is queued, never awaited.
func (r *Resolver) fetchAndStore(ctx context.Context, key string, target *url.URL, req *http.Request) (*Response, error) {
	result, err := r.fetcher.Fetch(ctx, target, req)
	if err != nil {
		return nil, err
	}

	if result.StatusCode != http.StatusOK {
		return &Response{
			StatusCode: result.StatusCode,
			Headers:    result.Headers,
			Body:       result.Body,
			Source:     SourcePassThrough,
			Key:        key,
		}, nil
	}

	headers := cache.CloneHeaders(result.Headers)
	if strings.TrimSpace(headers["cache-control"]) == "" {
		headers["cache-control"] = r.defaultCacheControl
	}

	r.memory.Put(key, headers, result.Body)
	r.writes.Enqueue(key, headers, result.Body)

	return &Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       result.Body,
		Source:     SourceUpstream,
		Key:        key,
	}, nil
}

func hit(key string, entry *cache.Entry, source Source) *Response {
	return &Response{
		StatusCode: http.StatusOK,
		Headers:    entry.Headers,
		Body:       entry.Body,
		Source:     source,
		Key:        key,
	}
}
