package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors returned by the forwarder.
var (
	// ErrInvalidTarget is returned when the target URL cannot be requested.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrBodyTooLarge is returned when the upstream body exceeds the configured limit.
	ErrBodyTooLarge = errors.New("upstream body too large")
)

// UpstreamError is returned for any failure to obtain an upstream response.
// A non-2xx status is not an UpstreamError; it is a valid Result.
type UpstreamError struct {
	Target     string
	ErrorClass ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s error for %s: %v", e.ErrorClass, e.Target, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// classifyError categorizes a transport error for observability.
func classifyError(err error) ErrorClass {
	var netErr net.Error
	switch {
	case errors.Is(err, ErrInvalidTarget):
		return ErrorClassInvalidTarget
	case errors.Is(err, ErrBodyTooLarge):
		return ErrorClassBody
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorClassTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ErrorClassTimeout
	default:
		return ErrorClassNetwork
	}
}
