package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyText is returned when the provider answers 2xx but the
// response carries no usable text. Retryable at the call layer.
var ErrEmptyText = errors.New("provider returned empty text")

// StatusError is a provider error with its numeric status attached.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider error: status %d", e.Code)
	}
	return fmt.Sprintf("provider error: status %d: %s", e.Code, e.Message)
}

// NewStatusError builds a StatusError.
func NewStatusError(code int, message string) *StatusError {
	return &StatusError{Code: code, Message: message}
}

// IsThrottle reports whether err is a provider throttle (HTTP 429).
func IsThrottle(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == 429
}

// IsOverload reports whether err is a provider overload (HTTP 503).
func IsOverload(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == 503
}

// IsRetryable reports whether err may succeed on another attempt:
// throttle, overload, request timeout, or an empty-text response.
// Every other provider status is terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrEmptyText) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == 429 || se.Code == 503
	}
	return false
}
