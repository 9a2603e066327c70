package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"docpipe/internal/retry"
	"docpipe/internal/services"
)

func TestDelayScheduleIsMonotonic(t *testing.T) {
	policy := retry.Policy{MaxAttempts: 5, InitialDelay: 2 * time.Second, Multiplier: 2}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, attempt := range []int{2, 3, 4, 5} {
		if got := policy.Delay(attempt); got != want[i] {
			t.Fatalf("Delay(%d) = %s, want %s", attempt, got, want[i])
		}
	}
	schedule := policy.Schedule()
	if len(schedule) != 4 {
		t.Fatalf("expected 4 scheduled delays, got %d", len(schedule))
	}
	for i := 1; i < len(schedule); i++ {
		if schedule[i] <= schedule[i-1] {
			t.Fatalf("schedule not strictly increasing: %v", schedule)
		}
	}
	if policy.Delay(1) != 0 {
		t.Fatalf("first attempt should not wait, got %s", policy.Delay(1))
	}
}

func TestDelayHonoursCap(t *testing.T) {
	policy := retry.Policy{MaxAttempts: 10, InitialDelay: time.Second, Multiplier: 3, MaxDelay: 5 * time.Second}
	if got := policy.Delay(6); got != 5*time.Second {
		t.Fatalf("expected capped delay, got %s", got)
	}
}

func TestDoSucceedsAfterTransportFailures(t *testing.T) {
	var sleeps []time.Duration
	policy := retry.Transport(5, time.Millisecond, 2)
	policy.OnRetry = func(_ int, delay time.Duration, _ error) {
		sleeps = append(sleeps, delay)
	}

	calls := 0
	got, err := retry.DoValue(context.Background(), policy, func(context.Context, int) (string, error) {
		calls++
		if calls <= 3 {
			return "", services.Wrap(services.ErrTransport, "test", "call", "flaky", nil)
		}
		return "payload", nil
	})
	if err != nil {
		t.Fatalf("DoValue returned error: %v", err)
	}
	if got != "payload" {
		t.Fatalf("unexpected payload %q", got)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
	if len(sleeps) != 3 {
		t.Fatalf("expected exactly 3 sleeps, got %d (%v)", len(sleeps), sleeps)
	}
	if sleeps[0] != time.Millisecond || sleeps[1] != 2*time.Millisecond || sleeps[2] != 4*time.Millisecond {
		t.Fatalf("unexpected sleep schedule %v", sleeps)
	}
}

func TestDoExhaustionReturnsTerminalError(t *testing.T) {
	cause := services.Wrap(services.ErrRateLimit, "test", "call", "429", nil)
	policy := retry.Transport(3, time.Millisecond, 2)

	calls := 0
	got, err := retry.DoValue(context.Background(), policy, func(context.Context, int) (*struct{}, error) {
		calls++
		return nil, cause
	})
	if got != nil {
		t.Fatalf("expected nil result, got %v", got)
	}
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExhausted) {
		t.Fatalf("expected exhaustion marker, got %v", err)
	}
	if !errors.Is(err, services.ErrRateLimit) {
		t.Fatalf("expected final cause to be retained, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	policy := retry.Transport(5, time.Millisecond, 2)
	calls := 0
	err := policy.Do(context.Background(), func(context.Context, int) error {
		calls++
		return services.Wrap(services.ErrAuth, "test", "call", "401", nil)
	})
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if errors.Is(err, services.ErrExhausted) {
		t.Fatalf("non-retryable error should not be reported as exhaustion: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestDoPassesAttemptNumbers(t *testing.T) {
	policy := retry.Stage(3, 0, 2)
	var seen []int
	_ = policy.Do(context.Background(), func(_ context.Context, attempt int) error {
		seen = append(seen, attempt)
		return errors.New("always")
	})
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Fatalf("unexpected attempts %v", seen)
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := retry.Stage(5, time.Hour, 2)
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func(context.Context, int) error {
			calls++
			return errors.New("fail")
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Fatalf("expected one call before cancellation, got %d", calls)
	}
}

func TestSleepReturnsEarlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := retry.Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
