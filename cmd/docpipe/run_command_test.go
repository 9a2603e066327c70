package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docpipe/internal/checkpoint"
	"docpipe/internal/state"
	"docpipe/internal/testsupport"
)

func TestRunCommandCompletesTextInput(t *testing.T) {
	env := setupCLITestEnv(t)
	input := env.writeInput(t, "doc.md")

	out, _, err := runCLI(t, []string{"run", input}, env.configPath, testsupport.HappyGenerator())
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	requireContains(t, out, "completed")
	requireContains(t, out, string(state.StageMapToSchema))

	store := checkpoint.NewStore(env.cfg.OutputDir(input))
	if _, err := os.Stat(filepath.Join(store.Root(), "doc.md")); err != nil {
		t.Fatalf("expected raw text copy: %v", err)
	}
	for _, name := range []string{state.FinalRecords, state.FinalReviewReport, state.FinalSpreadsheet} {
		if _, err := os.Stat(store.FinalPath(name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}

	out, _, err = runCLI(t, []string{"runs"}, env.configPath, nil)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	requireContains(t, out, input)
	requireContains(t, out, "completed")
}

func TestRunCommandReportsFailure(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStageAttempts(1))
	input := env.writeInput(t, "doc.md")
	gen := testsupport.HappyGenerator().
		Script(testsupport.ModelNormalize, testsupport.OK("not json"))

	out, _, err := runCLI(t, []string{"run", input}, env.configPath, gen)
	if !errors.Is(err, errRunFailed) {
		t.Fatalf("expected errRunFailed, got %v", err)
	}
	requireContains(t, out, "failed at normalize")

	failed := checkpoint.NewStore(env.cfg.OutputDir(input)).CheckpointPath(state.StageNormalize.FailureCheckpoint())
	if _, err := os.Stat(failed); err != nil {
		t.Fatalf("expected failure checkpoint: %v", err)
	}
}

func TestRunCommandResetRemovesOutput(t *testing.T) {
	env := setupCLITestEnv(t)
	input := env.writeInput(t, "doc.md")

	if _, _, err := runCLI(t, []string{"run", input}, env.configPath, testsupport.HappyGenerator()); err != nil {
		t.Fatalf("run: %v", err)
	}
	out, _, err := runCLI(t, []string{"run", "--reset", input}, env.configPath, nil)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	requireContains(t, out, "Removed")
	if _, err := os.Stat(env.cfg.OutputDir(input)); !os.IsNotExist(err) {
		t.Fatalf("output dir still present: %v", err)
	}
}

func TestRunCommandOutputRootFlag(t *testing.T) {
	env := setupCLITestEnv(t)
	input := env.writeInput(t, "doc.md")
	root := filepath.Join(env.baseDir, "elsewhere")

	if _, _, err := runCLI(t, []string{"run", "--output-root", root, input}, env.configPath, testsupport.HappyGenerator()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(checkpoint.NewStore(filepath.Join(root, "output-doc")).FinalPath(state.FinalRecords)); err != nil {
		t.Fatalf("expected records under custom root: %v", err)
	}
}

func TestResumeContinuesFromCheckpoint(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStageAttempts(1))
	input := env.writeInput(t, "doc.md")
	broken := testsupport.HappyGenerator().
		Script(testsupport.ModelNormalize, testsupport.OK("not json"))

	if _, _, err := runCLI(t, []string{"run", input}, env.configPath, broken); !errors.Is(err, errRunFailed) {
		t.Fatalf("expected first run to fail, got %v", err)
	}

	gen := testsupport.HappyGenerator()
	out, _, err := runCLI(t, []string{"resume", input}, env.configPath, gen)
	if err != nil {
		t.Fatalf("resume: %v\n%s", err, out)
	}
	requireContains(t, out, "Resuming from "+state.StageSegment.Checkpoint())
	requireContains(t, out, "completed")
	if got := gen.Calls(testsupport.ModelSegment); got != 0 {
		t.Fatalf("segment re-ran %d times", got)
	}
	if got := gen.Calls(testsupport.ModelNormalize); got != 1 {
		t.Fatalf("normalize calls = %d, want 1", got)
	}
}

func TestResumeWithoutCheckpoint(t *testing.T) {
	env := setupCLITestEnv(t)
	input := env.writeInput(t, "doc.md")

	_, _, err := runCLI(t, []string{"resume", input}, env.configPath, testsupport.HappyGenerator())
	if err == nil {
		t.Fatal("expected error")
	}
	requireContains(t, err.Error(), "no checkpoint")
}
