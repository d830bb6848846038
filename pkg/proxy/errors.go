package proxy

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrHostNotAllowed indicates the target host is not on the allow-list.
	ErrHostNotAllowed = errors.New("host not allowed")

	// ErrMalformedTarget indicates the target could not be parsed as a URL.
	ErrMalformedTarget = errors.New("malformed target")
)

// TargetError is returned when a request is rejected before any cache or
// upstream access.
type TargetError struct {
	Target string
	Err    error
}

// Error implements the error interface.
func (e *TargetError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Target)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TargetError) Unwrap() error {
	return e.Err
}

// StatusCode maps a Resolve error to the HTTP status returned to the caller.
// Upstream failures and anything unexpected map to 500.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrHostNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, ErrMalformedTarget):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
