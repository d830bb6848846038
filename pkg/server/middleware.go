package server

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hades72k/proxyhades/pkg/cache"
	"github.com/hades72k/proxyhades/pkg/logging"
	"github.com/hades72k/proxyhades/pkg/ratelimit"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-Id"

// AccessKeyHeader is an alternative to the auth query parameter.
const AccessKeyHeader = "X-Access-Key"

// sourceUnknown labels requests that never reached the resolver.
const sourceUnknown = "none"

type requestInfoKey struct{}

// requestInfo lets the proxy handler report the cache source to the access
// log middleware wrapping it.
type requestInfo struct {
	source string
}

func setSource(ctx context.Context, source string) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.source = source
	}
}

// requestID tags the request context logger with an ID, reusing the inbound
// header when present.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// accessLog logs one line per request and records the HTTP metrics.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &requestInfo{source: sourceUnknown}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(strconv.Itoa(status), info.source).Inc()
		httpRequestDuration.WithLabelValues(info.source).Observe(duration.Seconds())

		logging.FromContext(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Str("source", info.source).
			Dur("duration", duration).
			Msg("Request handled")
	})
}

// rateLimit rejects clients over their window budget with 429.
func rateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), clientIP(r))
			if err != nil {
				logging.FromContext(r.Context()).Debug().Err(err).Msg("Rate limit check failed open")
			}
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := decision.RetryAfter(time.Now())
			w.Header().Set("Retry-After", strconv.Itoa(int(retry/time.Second)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		})
	}
}

// requireAccessKey rejects requests that do not present one of keys, either
// as the auth query parameter or in the X-Access-Key header.
func requireAccessKey(authParam string, keys []string) func(http.Handler) http.Handler {
	allowed := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			allowed = append(allowed, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(AccessKeyHeader)
			if presented == "" {
				presented = cache.QueryParam(r.URL.RawQuery, authParam)
			}

			if presented == "" || !matchKey(allowed, []byte(presented)) {
				logging.FromContext(r.Context()).Warn().
					Str("client", clientIP(r)).
					Msg("Rejected request without valid access key")
				http.Error(w, "invalid access key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matchKey(allowed [][]byte, presented []byte) bool {
	match := 0
	for _, k := range allowed {
		match |= subtle.ConstantTimeCompare(k, presented)
	}
	return match == 1
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
