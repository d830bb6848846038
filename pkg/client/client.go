// Package client provides the upstream fetch forwarder: a single GET to an
// allow-listed host, reduced to status, allow-listed headers and body.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hades72k/proxyhades/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream requests.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxyhades_upstream_requests_total",
		Help: "Total upstream requests by host and status",
	}, []string{"host", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "proxyhades_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by host",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"host"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxyhades_upstream_errors_total",
		Help: "Total upstream transport errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassNetwork represents connection, DNS and TLS errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents client or context deadlines.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassInvalidTarget represents targets that could not be turned into a request.
	ErrorClassInvalidTarget ErrorClass = "invalid_target"

	// ErrorClassBody represents failures while reading the upstream body.
	ErrorClassBody ErrorClass = "body"
)

const (
	// DefaultAccept is sent upstream when the caller did not send Accept.
	DefaultAccept = "*/*"

	// DefaultMaxBodyBytes caps how much of an upstream body is read into memory.
	DefaultMaxBodyBytes = 32 << 20
)

// Result is a normalized upstream response.
type Result struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Config holds the forwarder configuration.
type Config struct {
	// UserAgent is sent when the inbound request carries none.
	UserAgent string

	// Timeout bounds a whole upstream exchange, redirects included.
	Timeout time.Duration

	// MaxBodyBytes caps the upstream body size.
	MaxBodyBytes int64
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:    userAgent,
		Timeout:      30 * time.Second,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Forwarder performs upstream GETs on behalf of the proxy.
type Forwarder struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new forwarder.
func New(cfg Config) (*Forwarder, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	return &Forwarder{
		// The default redirect policy (follow up to 10) is what we want.
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "forwarder").Logger(),
	}, nil
}

// Fetch performs a single upstream GET for target. The User-Agent and
// Accept headers are taken from in when present. Only transport failures
// are returned as errors; any upstream status is a valid Result.
func (f *Forwarder) Fetch(ctx context.Context, target *url.URL, in *http.Request) (*Result, error) {
	host := target.Hostname()

	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(host).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, f.fail(target, fmt.Errorf("%w: %v", ErrInvalidTarget, err))
	}
	req.Header.Set("User-Agent", f.userAgent(in))
	req.Header.Set("Accept", accept(in))

	f.logger.Debug().
		Str("target", target.String()).
		Msg("Forwarding request upstream")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, f.fail(target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes+1))
	if err != nil {
		return nil, f.fail(target, fmt.Errorf("read upstream body: %w", err))
	}
	if int64(len(body)) > f.config.MaxBodyBytes {
		return nil, f.fail(target, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, f.config.MaxBodyBytes))
	}

	upstreamRequestsTotal.WithLabelValues(host, strconv.Itoa(resp.StatusCode)).Inc()

	return &Result{
		StatusCode: resp.StatusCode,
		Headers:    cache.SelectHeaders(resp.Header),
		Body:       body,
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (f *Forwarder) SetHTTPClient(client *http.Client) {
	f.httpClient = client
}

func (f *Forwarder) fail(target *url.URL, err error) error {
	class := classifyError(err)
	upstreamErrorsTotal.WithLabelValues(string(class)).Inc()

	f.logger.Warn().
		Err(err).
		Str("target", target.String()).
		Str("error_class", string(class)).
		Msg("Upstream request failed")

	return &UpstreamError{
		Target:     target.String(),
		ErrorClass: class,
		Err:        err,
	}
}

func (f *Forwarder) userAgent(in *http.Request) string {
	if in != nil {
		if ua := in.Header.Get("User-Agent"); ua != "" {
			return ua
		}
	}
	return f.config.UserAgent
}

func accept(in *http.Request) string {
	if in != nil {
		if a := in.Header.Get("Accept"); a != "" {
			return a
		}
	}
	return DefaultAccept
}
