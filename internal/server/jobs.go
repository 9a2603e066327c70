package server

import (
	"context"
	"slices"
	"sync"
	"time"

	"docpipe/internal/logging"
	"docpipe/internal/pipeline"
	"docpipe/internal/progress"
	"docpipe/internal/services"
	"docpipe/internal/workflow"
)

type job struct {
	id      string
	input   pipeline.Input
	hub     *progress.Hub
	created time.Time

	mu     sync.Mutex
	result *workflow.Result
	failed error
	ended  time.Time
}

func newJob(id string, input pipeline.Input, buffer int) *job {
	return &job{
		id:      id,
		input:   input,
		hub:     progress.NewHub(buffer),
		created: time.Now().UTC(),
	}
}

// run prepares the input and drives the stages in event mode.
func (j *job) run(ctx context.Context, rt *pipeline.Runtime) {
	ctx = services.WithRunID(ctx, j.id)
	st, store, err := rt.Prepare(ctx, j.input)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, rt.Logger), "job input failed", "job_input_failed",
			logging.String("job_id", j.id),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the input path or the ocr model"),
		)
		_, _ = j.hub.Publish(progress.Event{Event: progress.Error, Data: map[string]any{
			"step":  "input",
			"error": err.Error(),
			"kind":  services.Kind(err),
		}})
		j.finish(nil, err)
		return
	}
	st.RunID = j.id
	result := rt.Driver(store).RunEvents(ctx, st, j.hub)
	j.finish(&result, nil)
}

func (j *job) finish(result *workflow.Result, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = result
	j.failed = err
	j.ended = time.Now().UTC()
	j.hub.Close()
}

// status derives the job summary. While the run is in flight only the
// progress events are consulted; the run state belongs to the driver.
func (j *job) status() JobStatus {
	events, next := j.hub.Tail(0)
	status := JobStatus{
		ID:             j.id,
		Input:          j.input.Path,
		Status:         StatusRunning,
		CompletedSteps: []string{},
		Next:           next,
		CreatedAt:      j.created,
		UpdatedAt:      j.created,
	}
	for _, evt := range events {
		status.UpdatedAt = evt.Timestamp
		step, _ := evt.Data["step"].(string)
		switch evt.Event {
		case progress.StepStart:
			status.CurrentStep = step
			status.Attempt = 1
		case progress.StepComplete:
			if !slices.Contains(status.CompletedSteps, step) {
				status.CompletedSteps = append(status.CompletedSteps, step)
			}
		case progress.StepError, progress.Error:
			if msg, ok := evt.Data["error"].(string); ok {
				status.LastError = msg
			}
			if attempt, ok := evt.Data["attempt"].(int); ok {
				status.Attempt = attempt + 1
			}
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case j.failed != nil:
		status.Status = StatusFailed
		status.LastError = j.failed.Error()
		status.Errors = []string{j.failed.Error()}
		status.UpdatedAt = j.ended
	case j.result != nil:
		status.Status = StatusFailed
		if j.result.Success {
			status.Status = StatusCompleted
			status.CurrentStep = ""
		}
		status.Errors = j.result.Errors
		status.Artifacts = j.result.Artifacts
		status.UpdatedAt = j.ended
	}
	return status
}
