package state

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"docpipe/internal/records"
)

// Markers for CurrentStage outside the stage list.
const (
	MarkerInit     = "init"
	MarkerComplete = "complete"
	MarkerFailed   = "failed"
)

// State is the single mutable aggregate of a pipeline run.
type State struct {
	SourceFile      string   `json:"source_file"`
	RunID           string   `json:"run_id"`
	CurrentStage    string   `json:"current_stage"`
	RetryCount      int      `json:"retry_count"`
	Errors          []string `json:"errors"`
	CompletedStages []Stage  `json:"completed_stages"`

	RawText string `json:"raw_text"`

	Segmentation  *records.Segmentation  `json:"structured_v0,omitempty"`
	Normalization *records.Normalization `json:"structured_v1,omitempty"`
	SchemaMapping *records.SchemaMapping `json:"db_ready,omitempty"`
	Review        *records.Review        `json:"review_report,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New initializes a state for a run over rawText. The text is NFC-normalized
// once here and never modified afterwards.
func New(sourceFile, rawText string) *State {
	now := time.Now().UTC()
	return &State{
		SourceFile:      sourceFile,
		RunID:           uuid.NewString(),
		CurrentStage:    MarkerInit,
		Errors:          []string{},
		CompletedStages: []Stage{},
		RawText:         norm.NFC.String(rawText),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AddError appends a diagnostic.
func (s *State) AddError(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// Completed reports whether stage already passed validation in this run.
func (s *State) Completed(stage Stage) bool {
	return slices.Contains(s.CompletedStages, stage)
}

// Done reports whether every stage completed.
func (s *State) Done() bool {
	return len(s.CompletedStages) == len(Order)
}

// NextStage returns the first stage that has not completed, or "" when done.
func (s *State) NextStage() Stage {
	if s.Done() {
		return ""
	}
	return Order[len(s.CompletedStages)]
}

// Output returns the stored output for stage, or nil.
func (s *State) Output(stage Stage) records.Output {
	switch stage {
	case StageSegment:
		if s.Segmentation != nil {
			return s.Segmentation
		}
	case StageNormalize:
		if s.Normalization != nil {
			return s.Normalization
		}
	case StageMapToSchema:
		if s.SchemaMapping != nil {
			return s.SchemaMapping
		}
	case StageReview:
		if s.Review != nil {
			return s.Review
		}
	}
	return nil
}

// Complete stores a validated output and records the stage as completed.
// Stages must complete in Order, each output must carry its success marker,
// and the output type must match the stage.
func (s *State) Complete(stage Stage, output records.Output) error {
	if output == nil || !output.Succeeded() {
		return errors.New("complete: output lacks success marker")
	}
	if next := s.NextStage(); next != stage {
		return fmt.Errorf("complete: stage %q is out of order (next is %q)", stage, next)
	}
	switch value := output.(type) {
	case *records.Segmentation:
		if stage != StageSegment {
			return fmt.Errorf("complete: segmentation output for stage %q", stage)
		}
		s.Segmentation = value
	case *records.Normalization:
		if stage != StageNormalize {
			return fmt.Errorf("complete: normalization output for stage %q", stage)
		}
		s.Normalization = value
	case *records.SchemaMapping:
		if stage != StageMapToSchema {
			return fmt.Errorf("complete: schema mapping output for stage %q", stage)
		}
		s.SchemaMapping = value
	case *records.Review:
		if stage != StageReview {
			return fmt.Errorf("complete: review output for stage %q", stage)
		}
		s.Review = value
	default:
		return fmt.Errorf("complete: unsupported output %T", output)
	}
	s.CompletedStages = append(s.CompletedStages, stage)
	return nil
}

// Validate checks the structural invariants of a (possibly rehydrated) state:
// completed stages form a prefix of Order and every completed stage has a
// successful output.
func (s *State) Validate() error {
	if len(s.CompletedStages) > len(Order) {
		return fmt.Errorf("state: %d completed stages exceeds pipeline length", len(s.CompletedStages))
	}
	for i, stage := range s.CompletedStages {
		if Order[i] != stage {
			return fmt.Errorf("state: completed stages %v are not a prefix of %v", s.CompletedStages, Order)
		}
		if out := s.Output(stage); out == nil || !out.Succeeded() {
			return fmt.Errorf("state: completed stage %q has no successful output", stage)
		}
	}
	return nil
}

// Touch refreshes UpdatedAt.
func (s *State) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// Summary is the read-only view handed to observers.
type Summary struct {
	RunID           string    `json:"run_id"`
	SourceFile      string    `json:"source_file"`
	CurrentStage    string    `json:"current_stage"`
	RetryCount      int       `json:"retry_count"`
	CompletedStages []Stage   `json:"completed_stages"`
	ErrorCount      int       `json:"error_count"`
	LastError       string    `json:"last_error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Summarize returns a detached summary of the state.
func (s *State) Summarize() Summary {
	summary := Summary{
		RunID:           s.RunID,
		SourceFile:      s.SourceFile,
		CurrentStage:    s.CurrentStage,
		RetryCount:      s.RetryCount,
		CompletedStages: slices.Clone(s.CompletedStages),
		ErrorCount:      len(s.Errors),
		UpdatedAt:       s.UpdatedAt,
	}
	if n := len(s.Errors); n > 0 {
		summary.LastError = s.Errors[n-1]
	}
	return summary
}
