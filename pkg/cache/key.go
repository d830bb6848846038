package cache

import (
	"net/http"
	"net/url"
	"strings"
)

// DefaultAuthParam is the query parameter that carries the proxy access key.
const DefaultAuthParam = "key"

// DeriveKey builds the canonical cache key for an inbound request.
//
// The key is the request path followed by its raw query with every
// authParam pair removed. Remaining pairs keep their order and encoding, so
// two requests that differ only in the access key share one cache entry.
//
// Example:
//
//	/thumbnails.roblox.com/v1/users?userIds=1&key=secret -> /thumbnails.roblox.com/v1/users?userIds=1
func DeriveKey(r *http.Request, authParam string) string {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}

	query := StripParam(r.URL.RawQuery, authParam)
	if query == "" {
		return path
	}
	return path + "?" + query
}

// StripParam removes every pair named name from a raw query string without
// touching the other pairs. Both '&' and ';' separate pairs; empty pairs and
// the separators between kept pairs are preserved.
func StripParam(rawQuery, name string) string {
	if rawQuery == "" || name == "" {
		return rawQuery
	}

	var b strings.Builder
	wrote := false
	for _, p := range splitQuery(rawQuery) {
		if p.pair != "" && paramName(p.pair) == name {
			continue
		}
		if wrote {
			b.WriteString(p.sep)
		}
		b.WriteString(p.pair)
		wrote = true
	}
	return b.String()
}

// QueryParam returns the unescaped value of the first pair named name,
// splitting the query the same way StripParam does.
func QueryParam(rawQuery, name string) string {
	if rawQuery == "" || name == "" {
		return ""
	}
	for _, p := range splitQuery(rawQuery) {
		if p.pair == "" || paramName(p.pair) != name {
			continue
		}
		_, value, _ := strings.Cut(p.pair, "=")
		if unescaped, err := url.QueryUnescape(value); err == nil {
			return unescaped
		}
		return value
	}
	return ""
}

type queryPair struct {
	sep  string // separator preceding the pair; empty for the first
	pair string
}

func splitQuery(rawQuery string) []queryPair {
	var pairs []queryPair
	sep := ""
	for {
		i := strings.IndexAny(rawQuery, "&;")
		if i < 0 {
			return append(pairs, queryPair{sep: sep, pair: rawQuery})
		}
		pairs = append(pairs, queryPair{sep: sep, pair: rawQuery[:i]})
		sep = rawQuery[i : i+1]
		rawQuery = rawQuery[i+1:]
	}
}

// paramName returns the unescaped name of a single "name=value" pair.
func paramName(pair string) string {
	name, _, _ := strings.Cut(pair, "=")
	if unescaped, err := url.QueryUnescape(name); err == nil {
		return unescaped
	}
	return name
}
