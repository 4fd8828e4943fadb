package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestStatusErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		throttle  bool
		overload  bool
	}{
		{"throttle", NewStatusError(429, "quota exceeded"), true, true, false},
		{"overload", NewStatusError(503, "model overloaded"), true, false, true},
		{"bad request", NewStatusError(400, "invalid argument"), false, false, false},
		{"unauthorized", NewStatusError(401, ""), false, false, false},
		{"server error", NewStatusError(500, "internal"), false, false, false},
		{"timeout", context.DeadlineExceeded, true, false, false},
		{"caller cancel", context.Canceled, false, false, false},
		{"empty text", ErrEmptyText, true, false, false},
		{"wrapped throttle", fmt.Errorf("call failed: %w", NewStatusError(429, "x")), true, true, false},
		{"nil", nil, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
			if got := IsThrottle(tt.err); got != tt.throttle {
				t.Errorf("IsThrottle = %v, want %v", got, tt.throttle)
			}
			if got := IsOverload(tt.err); got != tt.overload {
				t.Errorf("IsOverload = %v, want %v", got, tt.overload)
			}
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := NewStatusError(429, "quota exceeded")
	msg := err.Error()
	if msg != "provider error: status 429: quota exceeded" {
		t.Errorf("unexpected message: %q", msg)
	}

	var se *StatusError
	if !errors.As(fmt.Errorf("wrap: %w", err), &se) {
		t.Error("StatusError lost through wrapping")
	}
}
