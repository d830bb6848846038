// Package ratelimit implements a per-client fixed-window request limit shared
// across proxy instances through Redis.
package ratelimit

import (
	"fmt"
	"time"
)

// KeyPrefix namespaces the window counters in Redis.
const KeyPrefix = "proxyhades:rate_limit"

// Defaults applied when a limiter is configured without a window.
const (
	// DefaultWindow is the length of one counting window.
	DefaultWindow = time.Minute

	// DefaultRequests is the per-client budget for one window.
	DefaultRequests = 600
)

// Decision is the outcome of one Allow call.
type Decision struct {
	// Allowed is false when the client exhausted its budget for the window.
	Allowed bool `json:"allowed"`

	// Count is the number of requests seen in the window, this one included.
	Count int64 `json:"count"`

	// Limit is the per-window budget. Zero means unlimited.
	Limit int `json:"limit"`

	// ResetAt is when the current window ends.
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns how many requests are left in the window.
func (d *Decision) Remaining() int {
	if d.Limit <= 0 {
		return 0
	}
	left := int64(d.Limit) - d.Count
	if left < 0 {
		return 0
	}
	return int(left)
}

// RetryAfter returns the wait until the window resets, rounded up to whole
// seconds as used by the Retry-After header. It is never below one second.
func (d *Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	return (wait + time.Second - 1).Truncate(time.Second)
}

// windowStart returns the start of the window containing now.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

// windowKey returns the Redis key counting clientID's requests for the window
// starting at start.
func windowKey(prefix, clientID string, start time.Time) string {
	return fmt.Sprintf("%s:%s:%d", prefix, clientID, start.Unix())
}
