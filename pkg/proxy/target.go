package proxy

import (
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/hades72k/proxyhades/pkg/cache"
)

// DefaultAllowedHosts are the Roblox web API hosts proxied out of the box.
var DefaultAllowedHosts = []string{
	"apis.roblox.com",
	"avatar.roblox.com",
	"badges.roblox.com",
	"catalog.roblox.com",
	"economy.roblox.com",
	"friends.roblox.com",
	"games.roblox.com",
	"groups.roblox.com",
	"inventory.roblox.com",
	"presence.roblox.com",
	"thumbnails.roblox.com",
	"users.roblox.com",
}

// AllowList is the fixed set of upstream hosts the proxy may contact.
// Hosts match exactly (case-insensitive), port included when present.
type AllowList struct {
	hosts map[string]struct{}
}

// NewAllowList creates an allow-list from hosts.
func NewAllowList(hosts []string) *AllowList {
	a := &AllowList{hosts: make(map[string]struct{}, len(hosts))}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			a.hosts[h] = struct{}{}
		}
	}
	return a
}

// Allowed reports whether host may be contacted.
func (a *AllowList) Allowed(host string) bool {
	_, ok := a.hosts[strings.ToLower(host)]
	return ok
}

// Hosts returns the allowed hosts in sorted order.
func (a *AllowList) Hosts() []string {
	hosts := make([]string, 0, len(a.hosts))
	for h := range a.hosts {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// ParseTarget reconstructs the upstream URL from an inbound request path.
//
// Accepted forms (leading slash stripped):
//
//	thumbnails.roblox.com/v1/x
//	https://thumbnails.roblox.com/v1/x
//	https:/thumbnails.roblox.com/v1/x   (slashes collapsed by a client or router)
//
// A missing scheme defaults to https. The auth parameter is removed from the
// forwarded query.
func ParseTarget(r *http.Request, authParam string) (*url.URL, error) {
	raw := strings.TrimLeft(r.URL.EscapedPath(), "/")
	if raw == "" {
		return nil, &TargetError{Target: raw, Err: ErrMalformedTarget}
	}

	u, err := url.Parse(withScheme(raw))
	if err != nil || u.Hostname() == "" {
		return nil, &TargetError{Target: raw, Err: ErrMalformedTarget}
	}

	u.User = nil
	u.RawQuery = cache.StripParam(r.URL.RawQuery, authParam)
	u.Fragment = ""
	return u, nil
}

// withScheme repairs collapsed scheme slashes and adds https when no scheme
// is present.
func withScheme(raw string) string {
	lower := strings.ToLower(raw)
	for _, scheme := range []string{"https:", "http:"} {
		if !strings.HasPrefix(lower, scheme) {
			continue
		}
		rest := strings.TrimLeft(raw[len(scheme):], "/")
		return scheme + "//" + rest
	}
	return "https://" + raw
}
