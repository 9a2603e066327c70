package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"docpipe/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransport, "generator", "complete", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"generator", "complete", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestTransportRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", services.Wrap(services.ErrRateLimit, "generator", "complete", "429", nil), true},
		{"transport", services.Wrap(services.ErrTransport, "generator", "complete", "502", nil), true},
		{"auth", services.Wrap(services.ErrAuth, "generator", "complete", "401", nil), false},
		{"empty output", services.Wrap(services.ErrEmptyOutput, "generator", "content", "", nil), false},
		{"canceled", fmt.Errorf("%w: %w", services.ErrTransport, context.Canceled), false},
	}
	for _, tc := range cases {
		if got := services.TransportRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: TransportRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestStageRetryable(t *testing.T) {
	if !services.StageRetryable(errors.New("anything")) {
		t.Fatal("expected arbitrary failure to be stage retryable")
	}
	if !services.StageRetryable(services.Wrap(services.ErrMalformedOutput, "segment", "extract", "", nil)) {
		t.Fatal("expected malformed output to be stage retryable")
	}
	if services.StageRetryable(services.Wrap(services.ErrAuth, "generator", "complete", "", nil)) {
		t.Fatal("expected auth failure to be terminal")
	}
	if services.StageRetryable(context.DeadlineExceeded) {
		t.Fatal("expected deadline to be terminal")
	}
}

func TestKind(t *testing.T) {
	exhausted := services.Wrap(services.ErrExhausted, "retry", "", "3 attempts", services.Wrap(services.ErrRateLimit, "", "", "", nil))
	if got := services.Kind(exhausted); got != "exhausted" {
		t.Fatalf("expected exhausted to win over cause, got %q", got)
	}
	if got := services.Kind(services.Wrap(services.ErrMalformedOutput, "", "", "", nil)); got != "malformed_output" {
		t.Fatalf("unexpected kind %q", got)
	}
	if got := services.Kind(nil); got != "" {
		t.Fatalf("expected empty kind for nil, got %q", got)
	}
}
