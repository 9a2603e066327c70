package workflow

import (
	"context"
	"time"

	"docpipe/internal/state"
)

// RunInfo identifies a run for observers.
type RunInfo struct {
	RunID      string
	SourceFile string
	OutputDir  string
	Mode       Mode
}

// StageAttempt describes one finished stage attempt.
type StageAttempt struct {
	Stage   state.Stage
	Attempt int
	Err     error
	Elapsed time.Duration
}

// Observer receives run lifecycle notifications. Implementations handle
// their own failures; the driver ignores them.
type Observer interface {
	RunStarted(ctx context.Context, run RunInfo, summary state.Summary)
	StageAttempted(ctx context.Context, run RunInfo, attempt StageAttempt)
	RunFinished(ctx context.Context, run RunInfo, result Result)
}

// Observers fans notifications out to every registered observer.
type Observers []Observer

func (o Observers) RunStarted(ctx context.Context, run RunInfo, summary state.Summary) {
	for _, observer := range o {
		observer.RunStarted(ctx, run, summary)
	}
}

func (o Observers) StageAttempted(ctx context.Context, run RunInfo, attempt StageAttempt) {
	for _, observer := range o {
		observer.StageAttempted(ctx, run, attempt)
	}
}

func (o Observers) RunFinished(ctx context.Context, run RunInfo, result Result) {
	for _, observer := range o {
		observer.RunFinished(ctx, run, result)
	}
}
