package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"docpipe/internal/ledger"
	"docpipe/internal/services"
	"docpipe/internal/state"
	"docpipe/internal/testsupport"
	"docpipe/internal/workflow"
)

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	runs, err := reopened.List(context.Background(), 10)
	if err != nil || len(runs) != 0 {
		t.Fatalf("List on empty ledger: %v %v", runs, err)
	}
}

func TestRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	if err := store.StartRun(ctx, ledger.Run{ID: "run-1", SourceFile: "a.pdf", Mode: "blocking", CurrentStage: state.MarkerInit}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	attempts := []ledger.Attempt{
		{RunID: "run-1", Stage: "segment", Attempt: 1, Outcome: ledger.OutcomeSuccess, Duration: 120 * time.Millisecond},
		{RunID: "run-1", Stage: "normalize", Attempt: 1, Outcome: "transport", Error: "reset"},
		{RunID: "run-1", Stage: "normalize", Attempt: 2, Outcome: ledger.OutcomeSuccess},
	}
	for _, attempt := range attempts {
		if err := store.RecordAttempt(ctx, attempt); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}
	if err := store.FinishRun(ctx, "run-1", ledger.StatusFailed, "map-to-schema", "boom"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, err := store.Get(ctx, "run-1")
	if err != nil || run == nil {
		t.Fatalf("Get: %v %v", run, err)
	}
	if run.Status != ledger.StatusFailed || run.CompletedStages != 2 || run.CurrentStage != "map-to-schema" || run.ErrorMessage != "boom" {
		t.Fatalf("unexpected run %+v", run)
	}
	got, err := store.Attempts(ctx, "run-1")
	if err != nil {
		t.Fatalf("Attempts: %v", err)
	}
	if len(got) != 3 || got[1].Outcome != "transport" || got[1].Error != "reset" || got[0].Duration != 120*time.Millisecond {
		t.Fatalf("unexpected attempts %+v", got)
	}

	if missing, err := store.Get(ctx, "nope"); err != nil || missing != nil {
		t.Fatalf("missing run: %v %v", missing, err)
	}
	if err := store.FinishRun(ctx, "nope", ledger.StatusCompleted, "", ""); err == nil {
		t.Fatal("expected error finishing unknown run")
	}
}

func TestStartRunOnResumeResetsStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	_ = store.StartRun(ctx, ledger.Run{ID: "run-1", SourceFile: "a.pdf", Mode: "blocking"})
	_ = store.FinishRun(ctx, "run-1", ledger.StatusFailed, "review", "boom")
	if err := store.StartRun(ctx, ledger.Run{ID: "run-1", SourceFile: "a.pdf", Mode: "event", CompletedStages: 3}); err != nil {
		t.Fatalf("StartRun again: %v", err)
	}
	run, _ := store.Get(ctx, "run-1")
	if run.Status != ledger.StatusRunning || run.ErrorMessage != "" || run.Mode != "event" || run.CompletedStages != 3 {
		t.Fatalf("unexpected run after resume %+v", run)
	}
	runs, _ := store.List(ctx, 0)
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
}

func TestObserverRecordsRun(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStageAttempts(2))
	store := testsupport.MustOpenLedger(t, cfg)
	observer := ledger.NewObserver(store, nil)
	ctx := context.Background()

	info := workflow.RunInfo{RunID: "run-9", SourceFile: "doc.pdf", OutputDir: "/tmp/out", Mode: workflow.ModeBlocking}
	observer.RunStarted(ctx, info, state.Summary{RunID: "run-9", CurrentStage: state.MarkerInit})
	observer.StageAttempted(ctx, info, workflow.StageAttempt{Stage: state.StageSegment, Attempt: 1, Err: services.Wrap(services.ErrRateLimit, "llm", "send", "429", nil)})
	observer.StageAttempted(ctx, info, workflow.StageAttempt{Stage: state.StageSegment, Attempt: 2})
	observer.RunFinished(ctx, info, workflow.Result{Success: false, FailedStage: state.StageNormalize, Err: errors.New("exhausted")})

	run, err := store.Get(ctx, "run-9")
	if err != nil || run == nil {
		t.Fatalf("Get: %v %v", run, err)
	}
	if run.Status != ledger.StatusFailed || run.CurrentStage != string(state.StageNormalize) || run.CompletedStages != 1 {
		t.Fatalf("unexpected run %+v", run)
	}
	attempts, _ := store.Attempts(ctx, "run-9")
	if len(attempts) != 2 || attempts[0].Outcome != "rate_limit" || attempts[1].Outcome != ledger.OutcomeSuccess {
		t.Fatalf("unexpected attempts %+v", attempts)
	}
}

func TestObserverWiredIntoDriver(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	set := mustStages(t, cfg)
	driver := workflow.NewDriver(set, testsupport.HappyGenerator(), nil, workflow.SettingsFromConfig(cfg),
		workflow.WithObserver(ledger.NewObserver(store, nil)))
	result := driver.Run(ctx, state.New("doc.pdf", "Cliente: Mario Rossi"))
	if !result.Success {
		t.Fatalf("run failed: %v", result.Err)
	}
	run, err := store.Get(ctx, result.State.RunID)
	if err != nil || run == nil {
		t.Fatalf("Get: %v %v", run, err)
	}
	if run.Status != ledger.StatusCompleted || run.CompletedStages != len(state.Order) || run.CurrentStage != state.MarkerComplete {
		t.Fatalf("unexpected run %+v", run)
	}
}
