package cache

import (
	"testing"
	"time"
)

func TestEntry_ValidAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{
			name:      "expired entry",
			expiresAt: now.Add(-1 * time.Hour),
			want:      false,
		},
		{
			name:      "valid entry",
			expiresAt: now.Add(1 * time.Hour),
			want:      true,
		},
		{
			name:      "expires exactly now",
			expiresAt: now,
			want:      false,
		},
		{
			name:      "one nanosecond left",
			expiresAt: now.Add(time.Nanosecond),
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{ExpiresAt: tt.expiresAt}
			if got := entry.ValidAt(now); got != tt.want {
				t.Errorf("ValidAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	t.Run("expired", func(t *testing.T) {
		entry := &Entry{ExpiresAt: time.Now().Add(-1 * time.Minute)}
		if ttl := entry.TTL(); ttl != 0 {
			t.Errorf("TTL() = %v, want 0", ttl)
		}
		if !entry.IsExpired() {
			t.Error("IsExpired() = false, want true")
		}
	})

	t.Run("future", func(t *testing.T) {
		entry := &Entry{ExpiresAt: time.Now().Add(5 * time.Minute)}
		ttl := entry.TTL()
		if ttl <= 4*time.Minute || ttl > 5*time.Minute {
			t.Errorf("TTL() = %v, want about 5m", ttl)
		}
		if entry.IsExpired() {
			t.Error("IsExpired() = true, want false")
		}
	})
}
