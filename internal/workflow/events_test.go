package workflow_test

import (
	"context"
	"errors"
	"testing"

	"docpipe/internal/config"
	"docpipe/internal/progress"
	"docpipe/internal/services"
	"docpipe/internal/state"
	"docpipe/internal/testsupport"
	"docpipe/internal/workflow"
)

func kinds(events []progress.Event) []progress.Kind {
	out := make([]progress.Kind, 0, len(events))
	for _, evt := range events {
		out = append(out, evt.Event)
	}
	return out
}

func countKind(events []progress.Event, kind progress.Kind) int {
	n := 0
	for _, evt := range events {
		if evt.Event == kind {
			n++
		}
	}
	return n
}

func TestRunEventsEmitsOrderedProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	hub := progress.NewHub(64)
	driver := newDriver(t, cfg, testsupport.HappyGenerator(), nil, workflow.WithPool(workflow.NewPool(2)))

	result := driver.RunEvents(context.Background(), state.New("doc.pdf", rawText), hub)
	if !result.Success {
		t.Fatalf("run failed: %v", result.Err)
	}
	events, _ := hub.Tail(0)
	want := []progress.Kind{
		progress.StepStart, progress.StepComplete,
		progress.StepStart, progress.StepComplete,
		progress.StepStart, progress.StepComplete,
		progress.StepStart, progress.StepComplete,
		progress.Complete,
	}
	got := kinds(events)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	for i, stage := range state.Order {
		start := events[2*i]
		if start.Data["step"] != string(stage) || start.Data["index"] != i+1 || start.Data["total"] != len(state.Order) {
			t.Fatalf("unexpected step_start %v", start.Data)
		}
	}
	for i := 1; i < len(events); i++ {
		if events[i].Sequence <= events[i-1].Sequence {
			t.Fatalf("sequence not increasing at %d", i)
		}
	}
	if !hub.Closed() {
		t.Fatal("terminal event should close the hub")
	}
}

func TestRunEventsRetryPolicyReinvokes(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStageAttempts(3),
		testsupport.WithFailurePolicy(config.FailurePolicyRetry),
	)
	gen := testsupport.HappyGenerator().
		Script(testsupport.ModelSegment,
			testsupport.Fail(transportErr()),
			testsupport.OK("garbage"),
			testsupport.OK(testsupport.SegmentJSON),
		)
	hub := progress.NewHub(64)

	result := newDriver(t, cfg, gen, nil).RunEvents(context.Background(), state.New("doc.pdf", rawText), hub)
	if !result.Success {
		t.Fatalf("run failed: %v", result.Err)
	}
	if got := gen.Calls(testsupport.ModelSegment); got != 3 {
		t.Fatalf("segment calls = %d, want 3", got)
	}
	events, _ := hub.Tail(0)
	if n := countKind(events, progress.StepError); n != 2 {
		t.Fatalf("step_error events = %d, want 2", n)
	}
	if n := countKind(events, progress.Log); n != 2 {
		t.Fatalf("log events = %d, want 2", n)
	}
	if events[len(events)-1].Event != progress.Complete {
		t.Fatalf("last event = %s", events[len(events)-1].Event)
	}
}

func TestRunEventsReportPolicyBacksOffWithoutRetrying(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStageAttempts(3),
		testsupport.WithFailurePolicy(config.FailurePolicyReport),
	)
	gen := testsupport.HappyGenerator().
		Script(testsupport.ModelNormalize, testsupport.Fail(transportErr()))
	hub := progress.NewHub(64)

	result := newDriver(t, cfg, gen, nil).RunEvents(context.Background(), state.New("doc.pdf", rawText), hub)
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.FailedStage != state.StageNormalize || !errors.Is(result.Err, services.ErrExhausted) {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := gen.Calls(testsupport.ModelNormalize); got != 1 {
		t.Fatalf("normalize calls = %d, want 1", got)
	}
	events, _ := hub.Tail(0)
	if n := countKind(events, progress.Log); n != 2 {
		t.Fatalf("log events = %d, want one per backoff interval", n)
	}
	last := events[len(events)-1]
	if last.Event != progress.Error || last.Data["step"] != string(state.StageNormalize) {
		t.Fatalf("unexpected terminal event %+v", last)
	}
	if gen.Calls(testsupport.ModelMapToSchema) != 0 {
		t.Fatal("later stage ran after failure")
	}
}

func TestRunEventsStopsOnAuthFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStageAttempts(3))
	gen := testsupport.HappyGenerator().
		Script(testsupport.ModelSegment, testsupport.Fail(services.Wrap(services.ErrAuth, "test", "generate", "bad key", nil)))
	hub := progress.NewHub(64)

	result := newDriver(t, cfg, gen, nil).RunEvents(context.Background(), state.New("doc.pdf", rawText), hub)
	if result.Success || !errors.Is(result.Err, services.ErrAuth) {
		t.Fatalf("expected auth failure, got %v", result.Err)
	}
	if got := gen.Calls(testsupport.ModelSegment); got != 1 {
		t.Fatalf("segment calls = %d, want 1", got)
	}
	events, _ := hub.Tail(0)
	if got := kinds(events); len(got) != 3 || got[2] != progress.Error {
		t.Fatalf("events = %v", got)
	}
}

func TestRunEventsToleratesFailingEmitter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	emitter := progress.EmitterFunc(func(context.Context, progress.Kind, map[string]any) error {
		return errors.New("socket closed")
	})
	result := newDriver(t, cfg, testsupport.HappyGenerator(), nil).RunEvents(context.Background(), state.New("doc.pdf", rawText), emitter)
	if !result.Success {
		t.Fatalf("emitter failures must not fail the run: %v", result.Err)
	}
}
