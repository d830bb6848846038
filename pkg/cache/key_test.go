package cache

import (
	"net/http/httptest"
	"testing"
)

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{
			name:   "path only",
			target: "/thumbnails.roblox.com/v1/users",
			want:   "/thumbnails.roblox.com/v1/users",
		},
		{
			name:   "auth param removed",
			target: "/thumbnails.roblox.com/v1/x?userId=1&key=secret",
			want:   "/thumbnails.roblox.com/v1/x?userId=1",
		},
		{
			name:   "auth param first",
			target: "/users.roblox.com/v1/users/1?key=secret&a=1&b=2",
			want:   "/users.roblox.com/v1/users/1?a=1&b=2",
		},
		{
			name:   "only auth param",
			target: "/users.roblox.com/v1/users/1?key=secret",
			want:   "/users.roblox.com/v1/users/1",
		},
		{
			name:   "order preserved (not sorted)",
			target: "/games.roblox.com/v1/games?z=1&a=2&m=3",
			want:   "/games.roblox.com/v1/games?z=1&a=2&m=3",
		},
		{
			name:   "encoding preserved",
			target: "/catalog.roblox.com/v1/search?keyword=red%20hat&sort=a%2Cb",
			want:   "/catalog.roblox.com/v1/search?keyword=red%20hat&sort=a%2Cb",
		},
		{
			name:   "repeated auth param removed",
			target: "/groups.roblox.com/v1/groups/7?key=a&x=1&key=b",
			want:   "/groups.roblox.com/v1/groups/7?x=1",
		},
		{
			name:   "escaped auth param name removed",
			target: "/groups.roblox.com/v1/groups/7?%6Bey=a&x=1",
			want:   "/groups.roblox.com/v1/groups/7?x=1",
		},
		{
			name:   "param with similar prefix kept",
			target: "/groups.roblox.com/v1/groups/7?keyword=a&keys=b",
			want:   "/groups.roblox.com/v1/groups/7?keyword=a&keys=b",
		},
		{
			name:   "empty pairs kept",
			target: "/groups.roblox.com/v1/groups/7?&x=1&&",
			want:   "/groups.roblox.com/v1/groups/7?&x=1&&",
		},
		{
			name:   "empty pair between params kept",
			target: "/thumbnails.roblox.com/v1/x?a=1&&b=2",
			want:   "/thumbnails.roblox.com/v1/x?a=1&&b=2",
		},
		{
			name:   "semicolon separated auth param removed",
			target: "/thumbnails.roblox.com/v1/x?a=1;key=secret",
			want:   "/thumbnails.roblox.com/v1/x?a=1",
		},
		{
			name:   "semicolon separator kept",
			target: "/thumbnails.roblox.com/v1/x?a=1;key=secret;b=2",
			want:   "/thumbnails.roblox.com/v1/x?a=1;b=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if got := DeriveKey(req, DefaultAuthParam); got != tt.want {
				t.Errorf("DeriveKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestDeriveKey_AuthParamIgnored ensures requests that differ only in the
// access key share a cache key.
func TestDeriveKey_AuthParamIgnored(t *testing.T) {
	keys := []string{"", "a", "b", "some%20other", "x=y"}

	var first string
	for i, k := range keys {
		req := httptest.NewRequest("GET", "/avatar.roblox.com/v1/users/1/avatar?key="+k+"&size=48", nil)
		got := DeriveKey(req, DefaultAuthParam)
		if i == 0 {
			first = got
			continue
		}
		if got != first {
			t.Errorf("key for auth value %q = %q, want %q", k, got, first)
		}
	}
}

func TestDeriveKey_CustomParam(t *testing.T) {
	req := httptest.NewRequest("GET", "/a/b?token=t&key=k", nil)

	if got, want := DeriveKey(req, "token"), "/a/b?key=k"; got != want {
		t.Errorf("DeriveKey() = %q, want %q", got, want)
	}
}

func TestStripParam(t *testing.T) {
	tests := []struct {
		raw  string
		name string
		want string
	}{
		{"", "key", ""},
		{"a=1", "", "a=1"},
		{"key", "key", ""},
		{"key=&a=1", "key", "a=1"},
		{"a=1&b", "key", "a=1&b"},
		{"a=1&&b=2", "key", "a=1&&b=2"},
		{"a=1&key=x&&b=2", "key", "a=1&&b=2"},
		{"key=x;a=1", "key", "a=1"},
		{"a=1;b=2&key=x", "key", "a=1;b=2"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := StripParam(tt.raw, tt.name); got != tt.want {
				t.Errorf("StripParam(%q, %q) = %q, want %q", tt.raw, tt.name, got, tt.want)
			}
		})
	}
}

func TestQueryParam(t *testing.T) {
	tests := []struct {
		raw  string
		name string
		want string
	}{
		{"", "key", ""},
		{"key=secret", "", ""},
		{"a=1&key=secret", "key", "secret"},
		{"a=1;key=secret", "key", "secret"},
		{"key=first&key=second", "key", "first"},
		{"%6Bey=a%20b", "key", "a b"},
		{"keyword=x", "key", ""},
		{"key", "key", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := QueryParam(tt.raw, tt.name); got != tt.want {
				t.Errorf("QueryParam(%q, %q) = %q, want %q", tt.raw, tt.name, got, tt.want)
			}
		})
	}
}

// TestQueryParam_MatchesStripParam ensures the pair read as the access key is
// the pair removed from the cache key.
func TestQueryParam_MatchesStripParam(t *testing.T) {
	for _, raw := range []string{"a=1;key=secret", "key=secret&a=1", "a=1&&key=secret;b=2"} {
		if QueryParam(raw, DefaultAuthParam) != "secret" {
			t.Errorf("QueryParam(%q) did not find the key", raw)
		}
		if got := StripParam(raw, DefaultAuthParam); got != "" && QueryParam(got, DefaultAuthParam) != "" {
			t.Errorf("StripParam(%q) = %q still carries the key", raw, got)
		}
	}
}
