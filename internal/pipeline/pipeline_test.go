package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docpipe/internal/config"
	"docpipe/internal/ledger"
	"docpipe/internal/pipeline"
	"docpipe/internal/services"
	"docpipe/internal/state"
	"docpipe/internal/testsupport"
)

func newRuntime(t *testing.T, cfg *config.Config, gen *testsupport.StubGenerator, opts ...pipeline.Option) *pipeline.Runtime {
	t.Helper()
	rt, err := pipeline.NewRuntime(cfg, nil, append([]pipeline.Option{pipeline.WithGenerator(gen)}, opts...)...)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	return rt
}

func TestPrepareCopiesTextInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	input := filepath.Join(t.TempDir(), "polizza.txt")
	testsupport.WriteText(t, input, "Cliente: Mario Rossi")
	rt := newRuntime(t, cfg, testsupport.HappyGenerator())

	st, store, err := rt.Prepare(context.Background(), pipeline.Input{Path: input})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if st.RawText != "Cliente: Mario Rossi" || st.SourceFile != input {
		t.Fatalf("unexpected state %+v", st.Summarize())
	}
	if store.Root() != filepath.Join(cfg.Paths.OutputRoot, "output-polizza") {
		t.Fatalf("store root = %s", store.Root())
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "polizza.md")); err != nil {
		t.Fatalf("text copy missing: %v", err)
	}
}

func TestPrepareTranscribesImages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := filepath.Join(t.TempDir(), "scan")
	testsupport.WriteFile(t, filepath.Join(dir, "p2.png"), []byte("two"))
	testsupport.WriteFile(t, filepath.Join(dir, "p1.png"), []byte("one"))
	gen := testsupport.HappyGenerator().Script(testsupport.ModelOCR, testsupport.OK("page text"))
	rt := newRuntime(t, cfg, gen)

	st, store, err := rt.Prepare(context.Background(), pipeline.Input{Path: dir})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := gen.Calls(testsupport.ModelOCR); got != 2 {
		t.Fatalf("ocr calls = %d, want 2", got)
	}
	if !strings.HasPrefix(st.RawText, "--- Page 1 ---") || !strings.Contains(st.RawText, "--- Page 2 ---") {
		t.Fatalf("unexpected raw text %q", st.RawText)
	}

	again, _, err := rt.Prepare(context.Background(), pipeline.Input{Path: dir, SkipOCR: true})
	if err != nil {
		t.Fatalf("Prepare with skip: %v", err)
	}
	if again.RawText != st.RawText || gen.Calls(testsupport.ModelOCR) != 2 {
		t.Fatal("skip-ocr should reuse the saved transcription")
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "scan.md")); err != nil {
		t.Fatalf("transcription missing: %v", err)
	}
}

func TestPrepareSkipOCRWithoutTranscription(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	image := filepath.Join(t.TempDir(), "scan.png")
	testsupport.WriteFile(t, image, []byte("img"))
	rt := newRuntime(t, cfg, testsupport.HappyGenerator())

	if _, _, err := rt.Prepare(context.Background(), pipeline.Input{Path: image, SkipOCR: true}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestPrepareRejectsEmptyText(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	input := filepath.Join(t.TempDir(), "empty.md")
	testsupport.WriteText(t, input, "  \n")
	rt := newRuntime(t, cfg, testsupport.HappyGenerator())

	if _, _, err := rt.Prepare(context.Background(), pipeline.Input{Path: input}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunAndResumeThroughRuntime(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStageAttempts(1))
	input := filepath.Join(t.TempDir(), "doc.md")
	testsupport.WriteText(t, input, "Cliente: Mario Rossi")
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	if _, _, _, err := newRuntime(t, cfg, testsupport.HappyGenerator()).Resume(pipeline.Input{Path: input}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("resume before run: %v", err)
	}

	failing := testsupport.HappyGenerator().Script(testsupport.ModelNormalize, testsupport.OK("nope"))
	rt := newRuntime(t, cfg, failing, pipeline.WithLedger(store))
	st, cp, err := rt.Prepare(ctx, pipeline.Input{Path: input})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	first := rt.Driver(cp).Run(ctx, st)
	if first.Success {
		t.Fatal("expected failure")
	}

	rt = newRuntime(t, cfg, testsupport.HappyGenerator(), pipeline.WithLedger(store))
	resumed, cp, name, err := rt.Resume(pipeline.Input{Path: input})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if name != state.StageSegment.Checkpoint() {
		t.Fatalf("resumed from %s", name)
	}
	result := rt.Driver(cp).Run(ctx, resumed)
	if !result.Success {
		t.Fatalf("resume failed: %v", result.Err)
	}

	run, err := store.Get(ctx, result.State.RunID)
	if err != nil || run == nil || run.Status != ledger.StatusCompleted {
		t.Fatalf("ledger run = %+v, err %v", run, err)
	}
}

func TestPrepareClearsEarlierRunCheckpoints(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	input := filepath.Join(t.TempDir(), "doc.md")
	testsupport.WriteText(t, input, "Cliente: Mario Rossi")
	ctx := context.Background()

	rt := newRuntime(t, cfg, testsupport.HappyGenerator())
	st, cp, err := rt.Prepare(ctx, pipeline.Input{Path: input})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if result := rt.Driver(cp).Run(ctx, st); !result.Success {
		t.Fatalf("first run failed: %v", result.Err)
	}

	testsupport.WriteText(t, input, "NEW DOCUMENT CONTENT")
	fresh, cp, err := rt.Prepare(ctx, pipeline.Input{Path: input})
	if err != nil {
		t.Fatalf("Prepare again: %v", err)
	}
	if names, err := cp.List(); err != nil || len(names) != 0 {
		t.Fatalf("checkpoints after Prepare: %v err=%v", names, err)
	}
	if _, err := os.Stat(cp.FinalPath(state.FinalRecords)); !os.IsNotExist(err) {
		t.Fatalf("stale final records survived: %v", err)
	}

	// A fresh run interrupted after the raw snapshot resumes from that snapshot.
	if _, err := cp.Save(fresh, state.CheckpointRaw); err != nil {
		t.Fatalf("Save raw: %v", err)
	}
	resumed, _, name, err := rt.Resume(pipeline.Input{Path: input})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if name != state.CheckpointRaw || resumed.RunID != fresh.RunID || resumed.RawText != "NEW DOCUMENT CONTENT" {
		t.Fatalf("resumed %s run %q text %q", name, resumed.RunID, resumed.RawText)
	}
}

func TestPrepareUsesOutputDirOverride(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	input := filepath.Join(t.TempDir(), "doc.md")
	testsupport.WriteText(t, input, "Cliente: Mario Rossi")
	override := filepath.Join(t.TempDir(), "job-1")

	_, cp, err := newRuntime(t, cfg, testsupport.HappyGenerator()).Prepare(context.Background(), pipeline.Input{Path: input, OutputDir: override})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if cp.Root() != override {
		t.Fatalf("store root = %q, want %q", cp.Root(), override)
	}
	if _, err := os.Stat(filepath.Join(override, "doc.md")); err != nil {
		t.Fatalf("raw text not copied into override: %v", err)
	}
	if _, err := os.Stat(cfg.OutputDir(input)); !os.IsNotExist(err) {
		t.Fatalf("shared output area was created: %v", err)
	}
}

func TestSkipOCRReusesSharedTranscription(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	input := filepath.Join(t.TempDir(), "scan.png")
	testsupport.WriteFile(t, input, []byte("png"))
	testsupport.WriteText(t, filepath.Join(cfg.OutputDir(input), "scan.md"), "Cliente: Mario Rossi")
	override := filepath.Join(t.TempDir(), "job-2")

	gen := testsupport.HappyGenerator()
	st, _, err := newRuntime(t, cfg, gen).Prepare(context.Background(), pipeline.Input{Path: input, SkipOCR: true, OutputDir: override})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !strings.Contains(st.RawText, "Mario Rossi") {
		t.Fatalf("raw text = %q", st.RawText)
	}
	if got := gen.Calls(testsupport.ModelOCR); got != 0 {
		t.Fatalf("ocr calls = %d", got)
	}
}
