package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"docpipe/internal/services"
)

// Policy describes how many times an operation runs and how long to wait
// between runs. The delay before attempt n (n >= 2) is
// InitialDelay * Multiplier^(n-2), optionally capped at MaxDelay.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration

	// Retryable selects which errors earn another attempt. Nil retries every error.
	Retryable func(error) bool
	// OnRetry runs before each backoff sleep with the upcoming attempt number.
	OnRetry func(next int, delay time.Duration, err error)
}

// Transport returns a policy that retries rate limiting and transport failures.
func Transport(maxAttempts int, initial time.Duration, multiplier float64) Policy {
	return Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initial,
		Multiplier:   multiplier,
		Retryable:    services.TransportRetryable,
	}
}

// Stage returns a policy that retries any stage failure except rejected
// credentials and cancellation.
func Stage(maxAttempts int, initial time.Duration, multiplier float64) Policy {
	return Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initial,
		Multiplier:   multiplier,
		Retryable:    services.StageRetryable,
	}
}

// Attempts returns the normalized attempt budget (at least one).
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the sleep that precedes the given 1-indexed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 2 || p.InitialDelay <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt-2))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Schedule lists the delays preceding attempts 2..MaxAttempts.
func (p Policy) Schedule() []time.Duration {
	out := make([]time.Duration, 0, p.Attempts())
	for attempt := 2; attempt <= p.Attempts(); attempt++ {
		out = append(out, p.Delay(attempt))
	}
	return out
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempt
// budget runs out. Exhaustion returns an error marked services.ErrExhausted
// that still wraps the final failure. Cancellation ends the loop with the
// context error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var (
		attempt   int
		lastErr   error
		exhausted bool
	)
	backoff := goretry.BackoffFunc(func() (time.Duration, bool) {
		next := attempt + 1
		if next > p.Attempts() {
			exhausted = true
			return 0, true
		}
		delay := p.Delay(next)
		if p.OnRetry != nil {
			p.OnRetry(next, delay, lastErr)
		}
		return delay, false
	})

	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || (p.Retryable != nil && !p.Retryable(err)) {
			return err
		}
		return goretry.RetryableError(err)
	})
	if err != nil && exhausted {
		return services.Wrap(services.ErrExhausted, "retry", "", fmt.Sprintf("gave up after %d attempts", attempt), err)
	}
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		value, err := fn(ctx, attempt)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Sleep waits for d or until ctx ends, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
