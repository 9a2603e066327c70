package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docpipe/internal/config"
	"docpipe/internal/logging"
	"docpipe/internal/progress"
	"docpipe/internal/records"
	"docpipe/internal/retry"
	"docpipe/internal/services"
	"docpipe/internal/state"
)

// RunEvents executes the remaining stages in event-driven mode, offloading
// each attempt to the pool and reporting progress through emitter.
func (d *Driver) RunEvents(ctx context.Context, st *state.State, emitter progress.Emitter) Result {
	if emitter == nil {
		emitter = progress.Nop
	}
	started := time.Now()
	ctx, logger, info := d.begin(ctx, st, ModeEvent)
	emit := func(kind progress.Kind, data map[string]any) {
		if err := emitter.Emit(ctx, kind, data); err != nil {
			logger.Warn("progress delivery failed",
				logging.String(logging.FieldEventType, "progress_dropped"),
				logging.String("event", string(kind)),
				logging.Error(err),
			)
		}
	}

	total := len(state.Order)
	for index, stage := range state.Order {
		if st.Completed(stage) {
			continue
		}
		handler, err := d.handler(stage)
		if err != nil {
			return d.failEvents(ctx, logger, info, st, stage, 0, err, started, emit)
		}

		st.CurrentStage = string(stage)
		st.RetryCount = 0
		stageLogger := logger.With(logging.String(logging.FieldStage, string(stage)))
		stageLogger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.String("model", handler.Model),
			logging.String("failure_policy", d.failurePolicy()),
		)
		emit(progress.StepStart, map[string]any{
			"step":  string(stage),
			"index": index + 1,
			"total": total,
		})

		policy := d.settings.StagePolicy
		attempt := 1
		for {
			attemptCtx := stageContext(ctx, stage, attempt)
			attemptStart := time.Now()
			var output records.Output
			execErr := d.pool.Do(attemptCtx, func(ctx context.Context) error {
				out, err := d.attempt(ctx, handler, st)
				output = out
				return err
			})
			err = d.record(attemptCtx, stageLogger, info, st, stage, attempt, output, execErr, time.Since(attemptStart))
			if err == nil {
				emit(progress.StepComplete, map[string]any{
					"step":    string(stage),
					"attempt": attempt,
					"summary": output.Summary(),
				})
				break
			}
			emit(progress.StepError, map[string]any{
				"step":    string(stage),
				"attempt": attempt,
				"error":   err.Error(),
				"kind":    services.Kind(err),
			})

			next, retryErr := d.afterFailure(ctx, stageLogger, policy, st, stage, attempt, err, emit)
			if retryErr != nil {
				return d.failEvents(ctx, stageLogger, info, st, stage, attempt, retryErr, started, emit)
			}
			attempt = next
		}
	}

	result := d.succeed(ctx, logger, info, st, started)
	emit(progress.Complete, map[string]any{
		"success":   true,
		"summary":   st.Summarize(),
		"artifacts": result.Artifacts,
	})
	return result
}

func (d *Driver) failurePolicy() string {
	if d.settings.FailurePolicy == config.FailurePolicyReport {
		return config.FailurePolicyReport
	}
	return config.FailurePolicyRetry
}

// afterFailure applies the failure policy to a failed attempt. It returns the
// next attempt number, or the error that ends the stage.
func (d *Driver) afterFailure(ctx context.Context, logger *slog.Logger, policy retry.Policy, st *state.State, stage state.Stage, attempt int, err error, emit func(progress.Kind, map[string]any)) (int, error) {
	if policy.Retryable != nil && !policy.Retryable(err) {
		return 0, err
	}
	maxAttempts := policy.Attempts()
	if attempt >= maxAttempts {
		return 0, services.Wrap(services.ErrExhausted, "workflow", string(stage),
			fmt.Sprintf("gave up after %d attempts", attempt), err)
	}

	if d.failurePolicy() == config.FailurePolicyReport {
		for n := attempt + 1; n <= maxAttempts; n++ {
			delay := policy.Delay(n)
			emit(progress.Log, map[string]any{
				"step":    string(stage),
				"message": fmt.Sprintf("%s failed; backing off %s (%d/%d)", stage, delay, n, maxAttempts),
			})
			if sleepErr := retry.Sleep(ctx, delay); sleepErr != nil {
				return 0, sleepErr
			}
		}
		logger.Info("backoff schedule elapsed; reporting failure",
			logging.String(logging.FieldEventType, "stage_backoff_elapsed"),
			logging.Int("max_attempts", maxAttempts),
		)
		return 0, services.Wrap(services.ErrExhausted, "workflow", string(stage),
			fmt.Sprintf("reported after %d backoff intervals", maxAttempts-attempt), err)
	}

	next := attempt + 1
	delay := policy.Delay(next)
	st.RetryCount = attempt
	emit(progress.Log, map[string]any{
		"step":    string(stage),
		"message": fmt.Sprintf("retrying %s in %s (attempt %d/%d)", stage, delay, next, maxAttempts),
	})
	logger.Info("retrying stage",
		logging.String(logging.FieldEventType, "stage_retry"),
		logging.Int(logging.FieldAttempt, next),
		logging.Int("max_attempts", maxAttempts),
		logging.Duration("delay", delay),
	)
	if sleepErr := retry.Sleep(ctx, delay); sleepErr != nil {
		return 0, sleepErr
	}
	return next, nil
}

func (d *Driver) failEvents(ctx context.Context, logger *slog.Logger, info RunInfo, st *state.State, stage state.Stage, attempts int, err error, started time.Time, emit func(progress.Kind, map[string]any)) Result {
	result := d.fail(ctx, logger, info, st, stage, attempts, err, started)
	emit(progress.Error, map[string]any{
		"step":    string(stage),
		"error":   err.Error(),
		"kind":    services.Kind(err),
		"errors":  result.Errors,
		"summary": st.Summarize(),
	})
	return result
}
