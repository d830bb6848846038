package ratelimit

import (
	"testing"
	"time"
)

func TestDecision_Remaining(t *testing.T) {
	tests := []struct {
		name     string
		decision Decision
		expected int
	}{
		{name: "fresh window", decision: Decision{Count: 1, Limit: 10}, expected: 9},
		{name: "at limit", decision: Decision{Count: 10, Limit: 10}, expected: 0},
		{name: "over limit", decision: Decision{Count: 12, Limit: 10}, expected: 0},
		{name: "unlimited", decision: Decision{Count: 5, Limit: 0}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.decision.Remaining(); got != tt.expected {
				t.Errorf("Remaining() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestDecision_RetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		resetAt  time.Time
		expected time.Duration
	}{
		{name: "whole seconds", resetAt: now.Add(30 * time.Second), expected: 30 * time.Second},
		{name: "rounds up", resetAt: now.Add(2300 * time.Millisecond), expected: 3 * time.Second},
		{name: "sub-second", resetAt: now.Add(time.Millisecond), expected: time.Second},
		{name: "already passed", resetAt: now.Add(-time.Second), expected: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Decision{ResetAt: tt.resetAt}
			if got := d.RetryAfter(now); got != tt.expected {
				t.Errorf("RetryAfter() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestWindowKey(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 42, 0, time.UTC)
	start := windowStart(now, time.Minute)

	if !start.Equal(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("windowStart() = %v", start)
	}

	key := windowKey(KeyPrefix, "10.0.0.1", start)
	want := "proxyhades:rate_limit:10.0.0.1:1767268800"
	if key != want {
		t.Errorf("windowKey() = %q, want %q", key, want)
	}
}
