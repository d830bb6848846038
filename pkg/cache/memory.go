package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultTTL is how long an entry stays servable when no TTL is configured.
	DefaultTTL = 5 * time.Minute

	// DefaultMemoryMaxEntries bounds the memory tier when no limit is configured.
	DefaultMemoryMaxEntries = 1000

	// EvictionPolicy names the policy the memory tier uses to enforce its bound.
	EvictionPolicy = "lru"
)

// MemoryConfig configures the memory tier.
type MemoryConfig struct {
	// MaxEntries is the maximum number of entries held at once.
	MaxEntries int

	// TTL is added to the insertion time to compute ExpiresAt.
	TTL time.Duration

	// Now overrides the clock (default: time.Now).
	Now Clock
}

// Memory is the volatile, size-bounded cache tier.
//
// Expired entries are not removed on lookup; they are reported as a miss and
// stay until overwritten or evicted. Memory is safe for concurrent use.
// Returned entries are shared and must not be modified.
type Memory struct {
	entries    *lru.Cache[string, *Entry]
	maxEntries int
	ttl        time.Duration
	now        Clock
}

// NewMemory creates a memory tier. Zero config values fall back to defaults.
func NewMemory(cfg MemoryConfig) (*Memory, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMemoryMaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	entries, err := lru.New[string, *Entry](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}

	return &Memory{
		entries:    entries,
		maxEntries: cfg.MaxEntries,
		ttl:        cfg.TTL,
		now:        cfg.Now,
	}, nil
}

// Get returns the entry for key if it is present and not expired.
func (m *Memory) Get(key string) (*Entry, bool) {
	entry, ok := m.entries.Get(key)
	if !ok || !entry.ValidAt(m.now()) {
		return nil, false
	}
	return entry, true
}

// Put stores headers and body under key with ExpiresAt = now + TTL,
// replacing any previous entry. If the tier is full, the least recently
// used entry is evicted.
func (m *Memory) Put(key string, headers map[string]string, body []byte) *Entry {
	entry := newEntry(headers, body, m.now().Add(m.ttl))

	if evicted := m.entries.Add(key, entry); evicted {
		CacheEvictions.WithLabelValues(LayerMemory).Inc()
	}
	CacheEntries.WithLabelValues(LayerMemory).Set(float64(m.entries.Len()))

	return entry
}

// Len returns the number of entries held, expired ones included.
func (m *Memory) Len() int {
	return m.entries.Len()
}

// MaxEntries returns the configured bound.
func (m *Memory) MaxEntries() int {
	return m.maxEntries
}

// TTL returns the configured time-to-live.
func (m *Memory) TTL() time.Duration {
	return m.ttl
}

// Purge drops every entry.
func (m *Memory) Purge() {
	m.entries.Purge()
	CacheEntries.WithLabelValues(LayerMemory).Set(0)
}
