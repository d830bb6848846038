// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// File additionally appends JSON logs to this path when set.
	File string

	// Version is attached to every log line when set.
	Version string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. The returned closer releases
// the log file, if any.
func Setup(cfg Config) (zerolog.Logger, io.Closer, error) {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("open log file: %w", err)
		}
		output = zerolog.MultiLevelWriter(output, f)
		closer = f
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Version != "" {
		ctx = ctx.Str("version", cfg.Version)
	}
	logger := ctx.Logger()

	// Set as global logger
	log.Logger = logger

	return logger, closer, nil
}

// ParseLevel converts LogLevel to zerolog.Level. Unknown values map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithRequestID returns a context carrying a logger tagged with requestID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	logger := FromContext(ctx).With().Str("request_id", requestID).Logger()
	return logger.WithContext(ctx)
}

// FromContext returns the request-scoped logger, or the global logger when
// the context carries none.
func FromContext(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache lookups (layer, key)
//   - Upstream request targets
//   - Swallowed disk read/delete errors
//
// Info: Normal operation events
//   - Access log lines (status, duration, cache source)
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Upstream transport failures
//   - Disk write failures and dropped writes
//   - Rate limiter backend unavailable (failing open)
//   - Rejected targets
//
// Error: Error conditions requiring attention
//   - Server failures
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package (forwarder, resolver, server, ratelimit)
//   - request_id: per-request UUID
//   - key: canonical cache key
//   - target: upstream URL
//   - source: memory, disk, upstream, pass-through
//   - status: HTTP status code
//   - duration: request duration
//   - error_class: network, timeout, invalid_target, body
