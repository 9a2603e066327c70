package ledger

import (
	"context"
	"log/slog"

	"docpipe/internal/logging"
	"docpipe/internal/services"
	"docpipe/internal/state"
	"docpipe/internal/workflow"
)

// OutcomeSuccess marks a successful stage attempt. Failed attempts record the
// error kind instead.
const OutcomeSuccess = "success"

// Observer writes run lifecycle events to the ledger. Write failures are
// logged and swallowed.
type Observer struct {
	store  *Store
	logger *slog.Logger
}

// NewObserver returns a workflow observer backed by store.
func NewObserver(store *Store, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Observer{store: store, logger: logging.NewComponentLogger(logger, "ledger")}
}

func (o *Observer) RunStarted(ctx context.Context, run workflow.RunInfo, summary state.Summary) {
	err := o.store.StartRun(ctx, Run{
		ID:              run.RunID,
		SourceFile:      run.SourceFile,
		OutputDir:       run.OutputDir,
		Mode:            string(run.Mode),
		CurrentStage:    summary.CurrentStage,
		CompletedStages: len(summary.CompletedStages),
	})
	o.warn(ctx, "start run", err)
}

func (o *Observer) StageAttempted(ctx context.Context, run workflow.RunInfo, attempt workflow.StageAttempt) {
	record := Attempt{
		RunID:    run.RunID,
		Stage:    string(attempt.Stage),
		Attempt:  attempt.Attempt,
		Outcome:  OutcomeSuccess,
		Duration: attempt.Elapsed,
	}
	if attempt.Err != nil {
		record.Outcome = services.Kind(attempt.Err)
		record.Error = attempt.Err.Error()
	}
	o.warn(ctx, "record attempt", o.store.RecordAttempt(ctx, record))
}

func (o *Observer) RunFinished(ctx context.Context, run workflow.RunInfo, result workflow.Result) {
	status := StatusCompleted
	stage := state.MarkerComplete
	message := ""
	if !result.Success {
		status = StatusFailed
		stage = string(result.FailedStage)
		if result.Err != nil {
			message = result.Err.Error()
		}
	}
	// The run context may already be canceled; the terminal row still matters.
	o.warn(ctx, "finish run", o.store.FinishRun(context.WithoutCancel(ctx), run.RunID, status, stage, message))
}

func (o *Observer) warn(ctx context.Context, operation string, err error) {
	if err == nil {
		return
	}
	logging.WarnWithContext(logging.WithContext(ctx, o.logger), "ledger write failed", "ledger_failed",
		logging.String("operation", operation),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "run history may be incomplete; check "+o.store.Path()),
	)
}
