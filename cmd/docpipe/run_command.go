package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"docpipe/internal/checkpoint"
	"docpipe/internal/config"
	"docpipe/internal/pipeline"
	"docpipe/internal/state"
	"docpipe/internal/workflow"
)

// errRunFailed is returned after the failure summary has been printed so main
// exits non-zero without repeating it.
var errRunFailed = errors.New("run failed")

func newRunCommand(ctx *commandContext) *cobra.Command {
	var skipOCR bool
	var reset bool
	var outputRoot string

	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "Run the full pipeline on a document",
		Long: "Run the full pipeline on a text file (.md, .txt), a page image, or a directory of page images.\n" +
			"Checkpoints, final records, and the review report are written under <output-root>/output-<stem>.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := applyOutputRoot(cfg, outputRoot); err != nil {
				return err
			}
			in := pipeline.Input{Path: args[0], SkipOCR: skipOCR}

			unlock, err := lockOutput(cfg, in.Path)
			if err != nil {
				return err
			}
			defer unlock()

			if reset {
				store := checkpoint.NewStore(cfg.OutputDir(in.Path))
				if err := store.Reset(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", store.Root())
				return nil
			}

			rt, closeRuntime, err := ctx.runtime()
			if err != nil {
				return err
			}
			defer closeRuntime()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, store, err := rt.Prepare(runCtx, in)
			if err != nil {
				return err
			}
			result := rt.Driver(store).Run(runCtx, st)
			return printResult(cmd, result)
		},
	}

	cmd.Flags().BoolVar(&skipOCR, "skip-ocr", false, "Reuse <output>/<stem>.md from an earlier OCR pass")
	cmd.Flags().BoolVar(&reset, "reset", false, "Delete the output area for the input and exit")
	cmd.Flags().StringVar(&outputRoot, "output-root", "", "Directory that holds output-<stem> areas")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	var outputRoot string

	cmd := &cobra.Command{
		Use:   "resume <input>",
		Short: "Continue a run from its latest stage checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := applyOutputRoot(cfg, outputRoot); err != nil {
				return err
			}
			in := pipeline.Input{Path: args[0]}

			unlock, err := lockOutput(cfg, in.Path)
			if err != nil {
				return err
			}
			defer unlock()

			rt, closeRuntime, err := ctx.runtime()
			if err != nil {
				return err
			}
			defer closeRuntime()

			st, store, name, err := rt.Resume(in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resuming from %s\n", name)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result := rt.Driver(store).Run(runCtx, st)
			return printResult(cmd, result)
		},
	}

	cmd.Flags().StringVar(&outputRoot, "output-root", "", "Directory that holds output-<stem> areas")
	return cmd
}

func applyOutputRoot(cfg *config.Config, outputRoot string) error {
	outputRoot = strings.TrimSpace(outputRoot)
	if outputRoot == "" {
		return nil
	}
	expanded, err := config.ExpandPath(outputRoot)
	if err != nil {
		return fmt.Errorf("resolve output root: %w", err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return fmt.Errorf("create output root: %w", err)
	}
	cfg.Paths.OutputRoot = expanded
	return nil
}

// lockOutput takes an exclusive lock for the input's output area. The lock
// file sits beside the area so --reset can remove the area while holding it.
func lockOutput(cfg *config.Config, input string) (func(), error) {
	dir := cfg.OutputDir(input)
	lockPath := filepath.Join(filepath.Dir(dir), "."+filepath.Base(dir)+".lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("another docpipe process is working on %s", dir)
	}
	return func() { _ = lock.Unlock() }, nil
}

func printResult(cmd *cobra.Command, result workflow.Result) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	completed := map[state.Stage]bool{}
	if result.State != nil {
		for _, stage := range result.State.CompletedStages {
			completed[stage] = true
		}
	}
	rows := make([][]string, 0, len(state.Order))
	for _, stage := range state.Order {
		status := "pending"
		switch {
		case completed[stage]:
			status = "done"
		case stage == result.FailedStage:
			status = "failed"
		}
		rows = append(rows, []string{string(stage), status, stage.Checkpoint()})
	}
	fmt.Fprintln(out, renderTable([]string{"Stage", "Status", "Checkpoint"}, rows, nil))

	if result.State != nil && result.State.SchemaMapping != nil {
		fmt.Fprintln(out, renderStatusLine("Records", statusInfo, fmt.Sprintf("%d", result.State.SchemaMapping.RecordCount()), colorize))
	}
	if result.State != nil && result.State.Review != nil {
		review := result.State.Review
		kind := statusOK
		if review.ReviewSummary.RequiresHumanReview {
			kind = statusWarn
		}
		fmt.Fprintln(out, renderStatusLine("Review", kind, fmt.Sprintf("%d issues, %s", len(review.Issues), review.ReviewRecommendation), colorize))
	}
	for _, path := range result.Artifacts {
		fmt.Fprintln(out, renderStatusLine("Wrote", statusInfo, path, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Elapsed", statusInfo, result.Elapsed.Round(time.Millisecond).String(), colorize))

	if result.Success {
		fmt.Fprintln(out, renderStatusLine("Result", statusOK, "completed", colorize))
		return nil
	}
	message := "failed"
	if result.Err != nil {
		message = fmt.Sprintf("failed at %s: %v", result.FailedStage, result.Err)
	}
	fmt.Fprintln(out, renderStatusLine("Result", statusError, message, colorize))
	for _, line := range result.Errors {
		fmt.Fprintf(out, "%s- %s\n", statusIndent, line)
	}
	return errRunFailed
}
