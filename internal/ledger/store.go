// Package ledger records the history of pipeline runs in SQLite: one row per
// run and one per stage attempt. It is written best effort by the workflow
// observer hooks and read by `docpipe runs` and the server's run listing.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one recorded pipeline run.
type Run struct {
	ID              string    `json:"id"`
	SourceFile      string    `json:"source_file"`
	OutputDir       string    `json:"output_dir,omitempty"`
	Mode            string    `json:"mode"`
	Status          Status    `json:"status"`
	CurrentStage    string    `json:"current_stage,omitempty"`
	CompletedStages int       `json:"completed_stages"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Attempt is one recorded stage attempt.
type Attempt struct {
	RunID     string        `json:"run_id"`
	Stage     string        `json:"stage"`
	Attempt   int           `json:"attempt"`
	Outcome   string        `json:"outcome"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store manages the ledger database.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// StartRun inserts a run, or marks an existing run (a resume) as running again.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (
            id, source_file, output_dir, mode, status, current_stage,
            completed_stages, error_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            output_dir = excluded.output_dir,
            mode = excluded.mode,
            status = excluded.status,
            current_stage = excluded.current_stage,
            completed_stages = excluded.completed_stages,
            error_message = NULL,
            updated_at = excluded.updated_at`,
		run.ID,
		run.SourceFile,
		nullableString(run.OutputDir),
		run.Mode,
		StatusRunning,
		nullableString(run.CurrentStage),
		run.CompletedStages,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// RecordAttempt appends a stage attempt and advances the run's current stage.
func (s *Store) RecordAttempt(ctx context.Context, attempt Attempt) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attempt tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stage_attempts (run_id, stage, attempt, outcome, error, duration_ms, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attempt.RunID,
		attempt.Stage,
		attempt.Attempt,
		attempt.Outcome,
		nullableString(attempt.Error),
		attempt.Duration.Milliseconds(),
		now,
	); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	completedDelta := 0
	if attempt.Outcome == OutcomeSuccess {
		completedDelta = 1
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET current_stage = ?, completed_stages = completed_stages + ?, updated_at = ? WHERE id = ?`,
		attempt.Stage, completedDelta, now, attempt.RunID,
	); err != nil {
		return fmt.Errorf("update run stage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attempt: %w", err)
	}
	return nil
}

// FinishRun records the terminal status of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status Status, currentStage, errorMessage string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, current_stage = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status,
		nullableString(currentStage),
		nullableString(errorMessage),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

const runColumns = "id, source_file, output_dir, mode, status, current_stage, completed_stages, error_message, created_at, updated_at"

// Get fetches one run. A missing run returns nil without error.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// List returns the most recently updated runs first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY updated_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Attempts returns the attempts of a run in insertion order.
func (s *Store) Attempts(ctx context.Context, runID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, attempt, outcome, error, duration_ms, created_at
         FROM stage_attempts WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var (
			attempt    Attempt
			errMessage sql.NullString
			durationMs int64
			createdRaw string
		)
		if err := rows.Scan(&attempt.RunID, &attempt.Stage, &attempt.Attempt, &attempt.Outcome, &errMessage, &durationMs, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempt.Error = errMessage.String
		attempt.Duration = time.Duration(durationMs) * time.Millisecond
		attempt.CreatedAt = parseTime(createdRaw)
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run          Run
		outputDir    sql.NullString
		status       string
		currentStage sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&run.ID,
		&run.SourceFile,
		&outputDir,
		&run.Mode,
		&status,
		&currentStage,
		&run.CompletedStages,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	run.OutputDir = outputDir.String
	run.Status = Status(status)
	run.CurrentStage = currentStage.String
	run.ErrorMessage = errorMessage.String
	run.CreatedAt = parseTime(createdRaw)
	run.UpdatedAt = parseTime(updatedRaw)
	return &run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
