package state

import "fmt"

// Stage names one step of the fixed pipeline.
type Stage string

const (
	StageSegment     Stage = "segment"
	StageNormalize   Stage = "normalize"
	StageMapToSchema Stage = "map-to-schema"
	StageReview      Stage = "review"
)

// Order is the fixed execution order.
var Order = []Stage{StageSegment, StageNormalize, StageMapToSchema, StageReview}

// Checkpoint file names.
const (
	CheckpointRaw = "raw_text.json"

	FinalState        = "pipeline_state.json"
	FinalRecords      = "db_ready.json"
	FinalReview       = "review_report.json"
	FinalReviewReport = "review_report.md"
	FinalSpreadsheet  = "db_ready.xlsx"
)

// Checkpoint returns the checkpoint file name written after the stage succeeds.
func (s Stage) Checkpoint() string {
	switch s {
	case StageSegment:
		return "structured_v0.json"
	case StageNormalize:
		return "structured_v1_normalized.json"
	case StageMapToSchema:
		return "db_ready.json"
	case StageReview:
		return "review_report.json"
	default:
		return string(s) + ".json"
	}
}

// FailureCheckpoint returns the checkpoint file name written when the stage
// fails terminally.
func (s Stage) FailureCheckpoint() string {
	return fmt.Sprintf("failed_%s.json", s)
}

// Index returns the position of s in Order, or -1.
func (s Stage) Index() int {
	for i, stage := range Order {
		if stage == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is part of the pipeline.
func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// ParseStage resolves a stage name.
func ParseStage(name string) (Stage, error) {
	stage := Stage(name)
	if !stage.Valid() {
		return "", fmt.Errorf("unknown stage %q", name)
	}
	return stage, nil
}
