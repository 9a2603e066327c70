// Package checkpoint persists pipeline state snapshots and terminal artifacts
// under a per-run output directory.
//
// Layout:
//
//	<root>/checkpoints/<name>.json   rolling snapshots, overwritten by name
//	<root>/final/<name>              terminal artifacts
//
// A root is owned by exactly one run. The store performs no locking; callers
// that might race (the CLI) take an advisory lock on the root themselves.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"docpipe/internal/fileutil"
	"docpipe/internal/state"
)

const (
	checkpointsDir = "checkpoints"
	finalDir       = "final"
)

// Store reads and writes snapshots beneath a root directory. A Store with an
// empty root accepts writes as no-ops and reports every checkpoint absent.
type Store struct {
	root string
}

// NewStore returns a store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

// Root returns the output directory, or "" when storage is disabled.
func (s *Store) Root() string {
	if s == nil {
		return ""
	}
	return s.root
}

// Enabled reports whether a storage root is configured.
func (s *Store) Enabled() bool {
	return s.Root() != ""
}

// CheckpointPath returns where a named checkpoint lives.
func (s *Store) CheckpointPath(name string) string {
	if !s.Enabled() {
		return ""
	}
	return filepath.Join(s.root, checkpointsDir, name)
}

// FinalPath returns where a named terminal artifact lives.
func (s *Store) FinalPath(name string) string {
	if !s.Enabled() {
		return ""
	}
	return filepath.Join(s.root, finalDir, name)
}

// Ensure creates the checkpoint and final directories.
func (s *Store) Ensure() error {
	if !s.Enabled() {
		return nil
	}
	for _, dir := range []string{checkpointsDir, finalDir} {
		if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", dir, err)
		}
	}
	return nil
}

// Save refreshes the state's UpdatedAt and writes the whole state under name,
// replacing any earlier snapshot with that name. It returns the written path,
// or "" when storage is disabled.
func (s *Store) Save(st *state.State, name string) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	if st == nil {
		return "", errors.New("save checkpoint: nil state")
	}
	st.Touch()
	path := s.CheckpointPath(name)
	if err := fileutil.WriteJSON(path, st); err != nil {
		return "", fmt.Errorf("save checkpoint %s: %w", name, err)
	}
	return path, nil
}

// SaveFinal writes a terminal artifact (a stage output or the full state).
func (s *Store) SaveFinal(v any, name string) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	path := s.FinalPath(name)
	if err := fileutil.WriteJSON(path, v); err != nil {
		return "", fmt.Errorf("save final %s: %w", name, err)
	}
	return path, nil
}

// SaveReport writes a rendered text artifact into the final area.
func (s *Store) SaveReport(content, name string) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	path := s.FinalPath(name)
	if err := fileutil.WriteFileAtomic(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("save report %s: %w", name, err)
	}
	return path, nil
}

// Load rehydrates a named checkpoint. A missing checkpoint reports found=false
// with a nil error.
func (s *Store) Load(name string) (*state.State, bool, error) {
	if !s.Enabled() {
		return nil, false, nil
	}
	var st state.State
	if err := fileutil.ReadJSON(s.CheckpointPath(name), &st); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load checkpoint %s: %w", name, err)
	}
	if err := st.Validate(); err != nil {
		return nil, false, fmt.Errorf("load checkpoint %s: %w", name, err)
	}
	return &st, true, nil
}

// List returns the checkpoint names present, sorted.
func (s *Store) List() ([]string, error) {
	if !s.Enabled() {
		return nil, nil
	}
	entries, err := os.ReadDir(filepath.Join(s.root, checkpointsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Latest loads the most advanced successful checkpoint: the latest stage
// checkpoint present, falling back to the initial raw-text snapshot.
// Failure snapshots are never resumed from. When a raw-text snapshot exists,
// only checkpoints carrying its run ID qualify.
func (s *Store) Latest() (*state.State, string, bool, error) {
	raw, rawFound, err := s.Load(state.CheckpointRaw)
	if err != nil {
		return nil, "", false, err
	}
	for _, stage := range slices.Backward(state.Order) {
		name := stage.Checkpoint()
		st, found, err := s.Load(name)
		if err != nil {
			return nil, "", false, err
		}
		if !found || (rawFound && st.RunID != raw.RunID) {
			continue
		}
		return st, name, true, nil
	}
	if rawFound {
		return raw, state.CheckpointRaw, true, nil
	}
	return nil, "", false, nil
}

// Clear removes every checkpoint and final artifact, leaving other files in
// the root (such as a saved transcription) in place.
func (s *Store) Clear() error {
	if !s.Enabled() {
		return nil
	}
	for _, dir := range []string{checkpointsDir, finalDir} {
		if err := os.RemoveAll(filepath.Join(s.root, dir)); err != nil {
			return fmt.Errorf("clear %s: %w", dir, err)
		}
	}
	return nil
}

// Reset deletes the whole output directory.
func (s *Store) Reset() error {
	if !s.Enabled() {
		return nil
	}
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("reset %s: %w", s.root, err)
	}
	return nil
}
