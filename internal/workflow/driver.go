package workflow

import (
	"context"
	"log/slog"
	"time"

	"docpipe/internal/checkpoint"
	"docpipe/internal/config"
	"docpipe/internal/logging"
	"docpipe/internal/records"
	"docpipe/internal/retry"
	"docpipe/internal/services"
	"docpipe/internal/stages"
	"docpipe/internal/state"
)

// Mode identifies which execution regime produced a run.
type Mode string

const (
	ModeBlocking Mode = "blocking"
	ModeEvent    Mode = "event"
)

// Settings configures the driver.
type Settings struct {
	// StagePolicy sets the stage attempt budget and backoff schedule.
	StagePolicy retry.Policy
	// FailurePolicy applies to event-driven runs: config.FailurePolicyRetry
	// or config.FailurePolicyReport.
	FailurePolicy string
	// SpreadsheetExport writes db_ready.xlsx next to the final records.
	SpreadsheetExport bool
}

// SettingsFromConfig derives driver settings from configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	policy := retry.Stage(cfg.Retry.StageMaxAttempts, cfg.InitialBackoff(), cfg.Retry.BackoffMultiplier)
	policy.MaxDelay = cfg.MaxBackoff()
	return Settings{
		StagePolicy:       policy,
		FailurePolicy:     cfg.Pipeline.FailurePolicy,
		SpreadsheetExport: true,
	}
}

// Result is the definite outcome of a run.
type Result struct {
	Success     bool
	State       *state.State
	Errors      []string
	FailedStage state.Stage
	Err         error
	Artifacts   []string
	Elapsed     time.Duration
}

// Driver sequences the stages of one run at a time.
type Driver struct {
	stages    *stages.Set
	generator stages.Generator
	store     *checkpoint.Store
	settings  Settings
	logger    *slog.Logger
	observers Observers
	pool      *Pool
}

// Option configures optional driver behavior.
type Option func(*Driver)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver registers a lifecycle observer.
func WithObserver(observer Observer) Option {
	return func(d *Driver) {
		if observer != nil {
			d.observers = append(d.observers, observer)
		}
	}
}

// WithPool sets the worker pool event-driven runs offload attempts to.
func WithPool(pool *Pool) Option {
	return func(d *Driver) {
		if pool != nil {
			d.pool = pool
		}
	}
}

// NewDriver constructs a driver. The store may be disabled (empty root).
func NewDriver(set *stages.Set, generator stages.Generator, store *checkpoint.Store, settings Settings, opts ...Option) *Driver {
	d := &Driver{
		stages:    set,
		generator: generator,
		store:     store,
		settings:  settings,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.store == nil {
		d.store = checkpoint.NewStore("")
	}
	if d.pool == nil {
		d.pool = NewPool(1)
	}
	d.logger = logging.NewComponentLogger(d.logger, "workflow")
	return d
}

// Store returns the checkpoint store the driver writes to.
func (d *Driver) Store() *checkpoint.Store {
	return d.store
}

func (d *Driver) runInfo(st *state.State, mode Mode) RunInfo {
	return RunInfo{
		RunID:      st.RunID,
		SourceFile: st.SourceFile,
		OutputDir:  d.store.Root(),
		Mode:       mode,
	}
}

func (d *Driver) begin(ctx context.Context, st *state.State, mode Mode) (context.Context, *slog.Logger, RunInfo) {
	ctx = services.WithRunID(ctx, st.RunID)
	logger := logging.WithContext(ctx, d.logger)
	info := d.runInfo(st, mode)

	if err := d.store.Ensure(); err != nil {
		logging.WarnWithContext(logger, "output directory unavailable", "checkpoint_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the output root"),
		)
	}
	if len(st.CompletedStages) == 0 {
		d.saveCheckpoint(logger, st, state.CheckpointRaw)
	}
	logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("mode", string(mode)),
		logging.String("source_file", st.SourceFile),
		logging.Int("completed_stages", len(st.CompletedStages)),
	)
	d.observers.RunStarted(ctx, info, st.Summarize())
	return ctx, logger, info
}

func stageContext(ctx context.Context, stage state.Stage, attempt int) context.Context {
	ctx = services.WithStage(ctx, string(stage))
	return services.WithAttempt(ctx, attempt)
}

// attempt runs one stage attempt without touching the state.
func (d *Driver) attempt(ctx context.Context, handler *stages.Handler, st *state.State) (records.Output, error) {
	return handler.Execute(ctx, d.generator, st)
}

// record applies one attempt's outcome to the state. It must run on the
// driver goroutine.
func (d *Driver) record(ctx context.Context, logger *slog.Logger, info RunInfo, st *state.State, stage state.Stage, attempt int, output records.Output, err error, elapsed time.Duration) error {
	if err == nil {
		err = st.Complete(stage, output)
	}
	d.observers.StageAttempted(ctx, info, StageAttempt{Stage: stage, Attempt: attempt, Err: err, Elapsed: elapsed})
	if err != nil {
		st.AddError("%s attempt %d: %v", stage, attempt, err)
		logging.WarnWithContext(logger, "stage attempt failed", "stage_attempt_failed",
			logging.Int(logging.FieldAttempt, attempt),
			logging.String("error_kind", services.Kind(err)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hintFor(err)),
		)
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int(logging.FieldAttempt, attempt),
		logging.Duration("stage_duration", elapsed),
		logging.Any("summary", output.Summary()),
	)
	d.saveCheckpoint(logger, st, stage.Checkpoint())
	return nil
}

func (d *Driver) handler(stage state.Stage) (*stages.Handler, error) {
	handler, ok := d.stages.For(stage)
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", string(stage), "no handler registered", nil)
	}
	return handler, nil
}

// fail halts the run at stage after attempts tries.
func (d *Driver) fail(ctx context.Context, logger *slog.Logger, info RunInfo, st *state.State, stage state.Stage, attempts int, err error, started time.Time) Result {
	st.CurrentStage = string(stage)
	if attempts == 0 {
		st.AddError("%s: %v", stage, err)
	} else {
		st.AddError("%s failed after %d attempt(s)", stage, attempts)
	}
	d.saveCheckpoint(logger, st, stage.FailureCheckpoint())
	st.CurrentStage = state.MarkerFailed

	logging.ErrorWithContext(logger, "pipeline failed", "stage_failure",
		logging.String(logging.FieldStage, string(stage)),
		logging.String("error_kind", services.Kind(err)),
		logging.Int("error_count", len(st.Errors)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hintFor(err)),
	)
	result := Result{
		Success:     false,
		State:       st,
		Errors:      append([]string(nil), st.Errors...),
		FailedStage: stage,
		Err:         err,
		Elapsed:     time.Since(started),
	}
	d.observers.RunFinished(ctx, info, result)
	return result
}

func (d *Driver) succeed(ctx context.Context, logger *slog.Logger, info RunInfo, st *state.State, started time.Time) Result {
	st.CurrentStage = state.MarkerComplete
	artifacts := d.writeFinal(logger, st)
	logger.Info("pipeline completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("error_count", len(st.Errors)),
		logging.Int("artifacts", len(artifacts)),
		logging.Duration("elapsed", time.Since(started)),
	)
	result := Result{
		Success:   true,
		State:     st,
		Errors:    append([]string(nil), st.Errors...),
		Artifacts: artifacts,
		Elapsed:   time.Since(started),
	}
	d.observers.RunFinished(ctx, info, result)
	return result
}

func (d *Driver) saveCheckpoint(logger *slog.Logger, st *state.State, name string) {
	path, err := d.store.Save(st, name)
	if err != nil {
		logging.WarnWithContext(logger, "checkpoint write failed", "checkpoint_failed",
			logging.String("checkpoint", name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "resume will start from an earlier checkpoint"),
		)
		return
	}
	if path != "" {
		logger.Debug("checkpoint written", logging.String("path", path))
	}
}

func hintFor(err error) string {
	switch services.Kind(err) {
	case "auth":
		return "check generator.api_key or DOCPIPE_API_KEY"
	case "rate_limit", "exhausted":
		return "generator is throttling or unavailable; retry later"
	case "malformed_output", "empty_output":
		return "generator output was unusable; inspect the failed checkpoint"
	case "canceled":
		return "run was interrupted; use docpipe resume to continue"
	default:
		return "inspect the failed checkpoint for details"
	}
}
