package workflow

import (
	"context"
	"time"

	"docpipe/internal/logging"
	"docpipe/internal/state"
)

// Run executes the remaining stages in blocking mode. Completed stages of a
// rehydrated state are skipped. Run always returns a definite result.
func (d *Driver) Run(ctx context.Context, st *state.State) Result {
	started := time.Now()
	ctx, logger, info := d.begin(ctx, st, ModeBlocking)

	for _, stage := range state.Order {
		if st.Completed(stage) {
			logger.Debug("stage already completed; skipping", logging.String(logging.FieldStage, string(stage)))
			continue
		}
		handler, err := d.handler(stage)
		if err != nil {
			return d.fail(ctx, logger, info, st, stage, 0, err, started)
		}

		st.CurrentStage = string(stage)
		st.RetryCount = 0
		stageLogger := logger.With(logging.String(logging.FieldStage, string(stage)))
		stageLogger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.String("model", handler.Model),
			logging.String("policy", handler.Policy.String()),
		)

		policy := d.settings.StagePolicy
		policy.OnRetry = func(next int, delay time.Duration, _ error) {
			st.RetryCount = next - 1
			stageLogger.Info("retrying stage",
				logging.String(logging.FieldEventType, "stage_retry"),
				logging.Int(logging.FieldAttempt, next),
				logging.Int("max_attempts", policy.Attempts()),
				logging.Duration("delay", delay),
			)
		}

		attempts := 0
		err = policy.Do(ctx, func(ctx context.Context, attempt int) error {
			attempts = attempt
			attemptCtx := stageContext(ctx, stage, attempt)
			attemptStart := time.Now()
			output, execErr := d.attempt(attemptCtx, handler, st)
			return d.record(attemptCtx, stageLogger, info, st, stage, attempt, output, execErr, time.Since(attemptStart))
		})
		if err != nil {
			return d.fail(ctx, stageLogger, info, st, stage, attempts, err, started)
		}
	}
	return d.succeed(ctx, logger, info, st, started)
}
