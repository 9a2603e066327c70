package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuth marks rejected credentials. Never retried at any layer.
	ErrAuth = errors.New("authentication failed")
	// ErrRateLimit marks a throttled request; retried at the transport layer.
	ErrRateLimit = errors.New("rate limited")
	// ErrTransport marks generic network or API failures, including empty bodies.
	ErrTransport = errors.New("transport failure")
	// ErrEmptyOutput marks a response that carried no usable content field.
	ErrEmptyOutput = errors.New("empty output")
	// ErrMalformedOutput marks generator output that could not be recovered
	// into a valid structured object.
	ErrMalformedOutput = errors.New("malformed output")
	// ErrExhausted marks a retry policy that ran out of attempts.
	ErrExhausted = errors.New("retries exhausted")

	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// TransportRetryable reports whether a failed network exchange should be
// attempted again. Only rate limiting and generic transport failures qualify.
func TransportRetryable(err error) bool {
	if err == nil || canceled(err) {
		return false
	}
	if errors.Is(err, ErrAuth) {
		return false
	}
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTransport)
}

// StageRetryable reports whether a failed stage attempt may be repeated. Any
// failure qualifies except rejected credentials and caller cancellation.
func StageRetryable(err error) bool {
	if err == nil || canceled(err) {
		return false
	}
	return !errors.Is(err, ErrAuth)
}

// Kind returns a short label for the error class, used for metrics and the
// run ledger.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case canceled(err):
		return "canceled"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrExhausted):
		return "exhausted"
	case errors.Is(err, ErrRateLimit):
		return "rate_limit"
	case errors.Is(err, ErrEmptyOutput):
		return "empty_output"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed_output"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unknown"
	}
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
