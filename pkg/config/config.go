// Package config loads proxy settings from an optional YAML file, an optional
// .env file and PROXYHADES_* environment variables, in increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hades72k/proxyhades/pkg/cache"
	"github.com/hades72k/proxyhades/pkg/proxy"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROXYHADES_"

// DefaultUserAgent is sent upstream when the inbound request carries none.
const DefaultUserAgent = "proxyhades/1.0"

// Config is the complete process configuration.
type Config struct {
	Listen       string   `yaml:"listen"`
	UserAgent    string   `yaml:"user_agent"`
	AuthParam    string   `yaml:"auth_param"`
	AccessKeys   []string `yaml:"access_keys"`
	AllowedHosts []string `yaml:"allowed_hosts"`

	Cache     CacheConfig     `yaml:"cache"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CacheConfig configures both cache tiers.
type CacheConfig struct {
	TTL                 time.Duration `yaml:"ttl"`
	MemoryMaxEntries    int           `yaml:"memory_max_entries"`
	Dir                 string        `yaml:"dir"`
	DefaultCacheControl string        `yaml:"default_cache_control"`
	WriteWorkers        int           `yaml:"write_workers"`
	WriteQueueSize      int           `yaml:"write_queue_size"`
	CoalesceFetches     bool          `yaml:"coalesce_fetches"`

	// WarmPaths are resolved once at startup to pre-fill the caches.
	WarmPaths []string `yaml:"warm_paths"`
}

// UpstreamConfig configures the forwarder.
type UpstreamConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// RateLimitConfig configures the Redis-backed limiter. An empty RedisURL
// disables limiting.
type RateLimitConfig struct {
	RedisURL string        `yaml:"redis_url"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	File   string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:       ":8080",
		UserAgent:    DefaultUserAgent,
		AuthParam:    cache.DefaultAuthParam,
		AllowedHosts: append([]string(nil), proxy.DefaultAllowedHosts...),
		Cache: CacheConfig{
			TTL:              cache.DefaultTTL,
			MemoryMaxEntries: cache.DefaultMemoryMaxEntries,
			Dir:              "cache",
			WriteWorkers:     cache.DefaultWriteWorkers,
			WriteQueueSize:   cache.DefaultWriteQueueSize,
		},
		Upstream: UpstreamConfig{
			Timeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Requests: 600,
			Window:   time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
		ShutdownTimeout: 15 * time.Second,
	}
}

// Load builds the configuration. path names an optional YAML file; an empty
// path skips it. A .env file in the working directory is loaded when present.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	envString("LISTEN", &c.Listen)
	envString("USER_AGENT", &c.UserAgent)
	envString("AUTH_PARAM", &c.AuthParam)
	envList("ACCESS_KEYS", &c.AccessKeys)
	envList("ALLOWED_HOSTS", &c.AllowedHosts)
	collect(envDuration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout))

	collect(envDuration("CACHE_TTL", &c.Cache.TTL))
	collect(envInt("CACHE_MEMORY_MAX_ENTRIES", &c.Cache.MemoryMaxEntries))
	envString("CACHE_DIR", &c.Cache.Dir)
	envString("CACHE_DEFAULT_CACHE_CONTROL", &c.Cache.DefaultCacheControl)
	collect(envInt("CACHE_WRITE_WORKERS", &c.Cache.WriteWorkers))
	collect(envInt("CACHE_WRITE_QUEUE_SIZE", &c.Cache.WriteQueueSize))
	collect(envBool("CACHE_COALESCE_FETCHES", &c.Cache.CoalesceFetches))
	envList("CACHE_WARM_PATHS", &c.Cache.WarmPaths)

	collect(envDuration("UPSTREAM_TIMEOUT", &c.Upstream.Timeout))

	envString("REDIS_URL", &c.RateLimit.RedisURL)
	collect(envInt("RATE_LIMIT_REQUESTS", &c.RateLimit.Requests))
	collect(envDuration("RATE_LIMIT_WINDOW", &c.RateLimit.Window))

	envString("LOG_LEVEL", &c.Log.Level)
	collect(envBool("LOG_PRETTY", &c.Log.Pretty))
	envString("LOG_FILE", &c.Log.File)

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		errs = append(errs, errors.New("user_agent is required"))
	}
	if c.AuthParam == "" {
		errs = append(errs, errors.New("auth_param is required"))
	}
	if len(c.AllowedHosts) == 0 {
		errs = append(errs, errors.New("allowed_hosts must not be empty"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL))
	}
	if c.Cache.MemoryMaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("cache.memory_max_entries must be positive, got %d", c.Cache.MemoryMaxEntries))
	}
	if c.Cache.Dir == "" {
		errs = append(errs, errors.New("cache.dir is required"))
	}
	if c.Cache.WriteWorkers <= 0 {
		errs = append(errs, fmt.Errorf("cache.write_workers must be positive, got %d", c.Cache.WriteWorkers))
	}
	if c.Cache.WriteQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("cache.write_queue_size must be positive, got %d", c.Cache.WriteQueueSize))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout must be positive, got %v", c.Upstream.Timeout))
	}
	if c.RateLimit.RedisURL != "" && c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.window must be positive, got %v", c.RateLimit.Window))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive, got %v", c.ShutdownTimeout))
	}
	return errors.Join(errs...)
}

// RateLimitEnabled reports whether requests should be counted.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimit.RedisURL != "" && c.RateLimit.Requests > 0
}

func envString(key string, dst *string) {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		*dst = value
	}
}

func envList(key string, dst *[]string) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return
	}
	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	*dst = list
}

func envInt(key string, dst *int) error {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = d
	return nil
}
