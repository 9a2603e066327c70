package server

import (
	"time"

	"docpipe/internal/ledger"
	"docpipe/internal/progress"
)

// Job statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// JobRequest starts a job from a file path or inline text.
type JobRequest struct {
	Input   string `json:"input,omitempty"`
	Text    string `json:"text,omitempty"`
	SkipOCR bool   `json:"skip_ocr,omitempty"`
}

// JobResponse is returned when a job is accepted.
type JobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Events string `json:"events"`
}

// JobStatus summarizes a job from its progress events and, once finished,
// its result.
type JobStatus struct {
	ID             string    `json:"id"`
	Input          string    `json:"input"`
	Status         string    `json:"status"`
	CurrentStep    string    `json:"current_step,omitempty"`
	CompletedSteps []string  `json:"completed_steps"`
	Attempt        int       `json:"attempt,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	Errors         []string  `json:"errors,omitempty"`
	Artifacts      []string  `json:"artifacts,omitempty"`
	Next           uint64    `json:"next"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EventsResponse carries a page of progress events.
type EventsResponse struct {
	Events []progress.Event `json:"events"`
	Next   uint64           `json:"next"`
	Done   bool             `json:"done"`
}

// RunsResponse lists ledger runs.
type RunsResponse struct {
	Runs []ledger.Run `json:"runs"`
}
