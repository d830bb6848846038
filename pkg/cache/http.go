package cache

import (
	"net/http"
	"strconv"
	"strings"
)

// AllowedHeaders are the only upstream headers that are kept, cached and
// returned to the caller.
var AllowedHeaders = []string{
	"content-type",
	"content-length",
	"cache-control",
	"last-modified",
	"etag",
}

// SelectHeaders copies the allow-listed headers out of an upstream response.
// Keys of the result are lower-case.
func SelectHeaders(h http.Header) map[string]string {
	selected := make(map[string]string, len(AllowedHeaders))
	for _, name := range AllowedHeaders {
		if v := h.Get(name); v != "" {
			selected[name] = v
		}
	}
	return selected
}

// CloneHeaders returns a copy of headers with lower-cased names.
func CloneHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[strings.ToLower(k)] = v
	}
	return out
}

// WriteHeaders sets the given headers on w. Content-Length always reflects
// bodyLen rather than the stored value, since the transport may have
// decoded the upstream body.
func WriteHeaders(w http.ResponseWriter, headers map[string]string, bodyLen int) {
	for k, v := range headers {
		if k == "content-length" {
			continue
		}
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Length", strconv.Itoa(bodyLen))
}
