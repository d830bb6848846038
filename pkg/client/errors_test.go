package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestUpstreamError_Error(t *testing.T) {
	err := &UpstreamError{
		Target:     "https://thumbnails.roblox.com/v1/x",
		ErrorClass: ErrorClassNetwork,
		Err:        errors.New("connection refused"),
	}

	expected := "upstream network error for https://thumbnails.roblox.com/v1/x: connection refused"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestUpstreamError_Unwrap(t *testing.T) {
	inner := errors.New("inner error")
	err := &UpstreamError{ErrorClass: ErrorClassNetwork, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}

	wrapped := fmt.Errorf("resolve: %w", err)
	var upErr *UpstreamError
	if !errors.As(wrapped, &upErr) {
		t.Error("errors.As should find *UpstreamError through wrapping")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{
			name:     "invalid target",
			err:      fmt.Errorf("%w: bad", ErrInvalidTarget),
			expected: ErrorClassInvalidTarget,
		},
		{
			name:     "body too large",
			err:      fmt.Errorf("%w: limit 1", ErrBodyTooLarge),
			expected: ErrorClassBody,
		},
		{
			name:     "deadline",
			err:      fmt.Errorf("get: %w", context.DeadlineExceeded),
			expected: ErrorClassTimeout,
		},
		{
			name:     "anything else",
			err:      errors.New("connection reset"),
			expected: ErrorClassNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.expected {
				t.Errorf("classifyError() = %q, want %q", got, tt.expected)
			}
		})
	}
}
