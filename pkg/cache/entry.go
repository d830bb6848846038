package cache

import (
	"time"
)

// Clock returns the current time. Tiers take one so tests can move time.
type Clock func() time.Time

// Entry is a cached upstream response.
type Entry struct {
	// ExpiresAt is the instant after which the entry must not be served.
	ExpiresAt time.Time `json:"expiresAt"`

	// Headers holds the allow-listed response headers, keyed by lower-case name.
	Headers map[string]string `json:"headers"`

	// Body is the raw response body. It is not part of the metadata record.
	Body []byte `json:"-"`
}

// ValidAt reports whether the entry can be served at now.
func (e *Entry) ValidAt(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// IsExpired returns true if the entry has expired at the current wall time.
func (e *Entry) IsExpired() bool {
	return !e.ValidAt(time.Now())
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}

func newEntry(headers map[string]string, body []byte, expiresAt time.Time) *Entry {
	return &Entry{
		ExpiresAt: expiresAt,
		Headers:   CloneHeaders(headers),
		Body:      body,
	}
}
