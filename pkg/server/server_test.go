package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hades72k/proxyhades/internal/testutil"
	"github.com/hades72k/proxyhades/pkg/cache"
	"github.com/hades72k/proxyhades/pkg/client"
	"github.com/hades72k/proxyhades/pkg/proxy"
	"github.com/hades72k/proxyhades/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	mock     *testutil.MockUpstream
	server   *Server
	cacheDir string
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mock := testutil.NewMockUpstream()
	t.Cleanup(mock.Close)

	dir := t.TempDir()
	memory, err := cache.NewMemory(cache.MemoryConfig{MaxEntries: 32, TTL: time.Minute})
	require.NoError(t, err)
	disk, err := cache.NewDisk(cache.DiskConfig{Dir: dir, TTL: time.Minute, Logger: zerolog.Nop()})
	require.NoError(t, err)
	writes := cache.NewWriteQueue(disk, cache.WriteQueueConfig{Workers: 1, Size: 16}, zerolog.Nop())
	t.Cleanup(writes.Close)

	forwarder, err := client.New(client.DefaultConfig("proxyhades-test/1.0"))
	require.NoError(t, err)

	resolver, err := proxy.New(proxy.Config{
		Memory:       memory,
		Disk:         disk,
		Writes:       writes,
		Fetcher:      forwarder,
		AllowedHosts: []string{mock.Host()},
	})
	require.NoError(t, err)

	cfg := Config{
		Resolver: resolver,
		CacheDir: dir,
		Logger:   zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := New(cfg)
	require.NoError(t, err)

	return &testEnv{mock: mock, server: srv, cacheDir: dir}
}

func (e *testEnv) do(t *testing.T, path string, header http.Header) (*http.Response, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (e *testEnv) target(path string) string {
	return "/http://" + e.mock.Host() + path
}

func TestNew_RequiresResolver(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		env := newTestEnv(t, nil)
		resp, body := env.do(t, "/ready", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "OK", body)
	})

	t.Run("not_ready_cache_dir_missing", func(t *testing.T) {
		env := newTestEnv(t, func(cfg *Config) {
			cfg.CacheDir = filepath.Join(t.TempDir(), "missing")
		})
		resp, _ := env.do(t, "/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		rdb := redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
			MaxRetries:  -1,
		})
		t.Cleanup(func() { rdb.Close() })

		env := newTestEnv(t, func(cfg *Config) { cfg.Redis = rdb })
		resp, _ := env.do(t, "/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestProxy_CachesOK(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.SetResponse("/v1/users/1", testutil.NewOKResponse(`{"id":1}`))

	for i := 0; i < 3; i++ {
		resp, body := env.do(t, env.target("/v1/users/1"), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `{"id":1}`, body)
		assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.Equal(t, `"test-etag-123"`, resp.Header.Get("ETag"))
		assert.Equal(t, "8", resp.Header.Get("Content-Length"))
		assert.Equal(t, "public, max-age=60", resp.Header.Get("Cache-Control"))
		assert.Empty(t, resp.Header.Get("Set-Cookie"))
		assert.NotEqual(t, "upstream-request", resp.Header.Get(RequestIDHeader))
	}

	assert.Equal(t, 1, env.mock.PathCount("/v1/users/1"))
	assert.Equal(t, "proxyhades-test/1.0", env.mock.LastRequestHeader().Get("User-Agent"))
}

func TestProxy_ForwardsClientHeaders(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.SetResponse("/v1/x", testutil.NewOKResponse(`{}`))

	header := http.Header{}
	header.Set("User-Agent", "game-server/2.0")
	header.Set("Accept", "application/json")
	resp, _ := env.do(t, env.target("/v1/x"), header)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "game-server/2.0", env.mock.LastRequestHeader().Get("User-Agent"))
	assert.Equal(t, "application/json", env.mock.LastRequestHeader().Get("Accept"))
}

func TestProxy_NonOKPassThrough(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.SetResponse("/v1/limited", testutil.NewRateLimitResponse())

	for i := 0; i < 2; i++ {
		resp, body := env.do(t, env.target("/v1/limited"), nil)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Contains(t, body, "Too many requests")
	}
	assert.Equal(t, 2, env.mock.PathCount("/v1/limited"))
}

func TestProxy_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"host not allowed", "/evil.example.com/x", http.StatusForbidden},
		{"malformed", "/https://", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, tt.path, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	assert.Equal(t, 0, env.mock.RequestCount())
	entries, err := os.ReadDir(env.cacheDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProxy_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	target := env.target("/v1/x")
	env.mock.Close()

	resp, body := env.do(t, target, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "upstream network error")
}

func TestProxy_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, env.target("/v1/x"), strings.NewReader("{}"))
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, 0, env.mock.RequestCount())
}

func TestProxy_AccessKeys(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.AccessKeys = []string{"alpha", "beta"} })
	env.mock.SetResponse("/v1/x", testutil.NewOKResponse(`{}`))

	resp, _ := env.do(t, env.target("/v1/x"), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, env.target("/v1/x?key=gamma"), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, env.mock.RequestCount())

	resp, _ = env.do(t, env.target("/v1/x?key=beta&a=1"), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/v1/x?a=1", env.mock.LastRequestURI())

	header := http.Header{}
	header.Set(AccessKeyHeader, "alpha")
	resp, _ = env.do(t, env.target("/v1/x?a=1"), header)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Different keys share one cache entry.
	assert.Equal(t, 1, env.mock.PathCount("/v1/x"))
}

func TestProxy_AccessKeySemicolonQuery(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.AccessKeys = []string{"alpha"} })
	env.mock.SetResponse("/v1/x", testutil.NewOKResponse(`{}`))

	resp, _ := env.do(t, env.target("/v1/x?a=2;key=gamma"), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, env.mock.RequestCount())

	resp, _ = env.do(t, env.target("/v1/x?a=2;key=alpha"), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/v1/x?a=2", env.mock.LastRequestURI())
}

func TestProxy_RequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(t, "/health", nil)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	header := http.Header{}
	header.Set(RequestIDHeader, "caller-id")
	resp, _ = env.do(t, "/health", header)
	assert.Equal(t, "caller-id", resp.Header.Get(RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.SetResponse("/v1/m", testutil.NewOKResponse(`{}`))
	env.do(t, env.target("/v1/m"), nil)

	resp, body := env.do(t, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "# TYPE")
	assert.Contains(t, body, "proxyhades_http_requests_total")
	assert.Contains(t, body, "proxyhades_cache_misses_total")
	assert.Contains(t, body, "proxyhades_upstream_requests_total")
}

func TestProxy_RateLimit(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("Redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	})

	limiter := ratelimit.NewLimiter(rdb, ratelimit.Config{
		Requests:  2,
		Window:    time.Hour,
		KeyPrefix: "proxyhades:test:" + t.Name(),
	}, zerolog.Nop())

	env := newTestEnv(t, func(cfg *Config) { cfg.Limiter = limiter })
	env.mock.SetResponse("/v1/x", testutil.NewOKResponse(`{}`))

	for i := 0; i < 2; i++ {
		resp, _ := env.do(t, env.target("/v1/x"), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, _ := env.do(t, env.target("/v1/x"), nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Health checks are never limited.
	resp, _ = env.do(t, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
