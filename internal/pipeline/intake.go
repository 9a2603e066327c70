package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docpipe/internal/checkpoint"
	"docpipe/internal/fileutil"
	"docpipe/internal/logging"
	"docpipe/internal/ocr"
	"docpipe/internal/services"
	"docpipe/internal/state"
)

// Input describes the document a run starts from.
type Input struct {
	// Path is a text file (.md, .txt), a page image, or a directory of page images.
	Path string
	// SkipOCR reuses <output>/<stem>.md from an earlier OCR pass.
	SkipOCR bool
	// OutputDir overrides the output-<stem> area under the output root.
	OutputDir string
}

// Stem returns the input name without directory or extension.
func (in Input) Stem() string {
	base := filepath.Base(strings.TrimRight(in.Path, string(filepath.Separator)))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsText reports whether the input is already plain text.
func (in Input) IsText() bool {
	switch strings.ToLower(filepath.Ext(in.Path)) {
	case ".md", ".txt":
		return true
	default:
		return false
	}
}

// TextPath returns where the input's raw text is kept inside outputDir.
func (in Input) TextPath(outputDir string) string {
	return filepath.Join(outputDir, in.Stem()+".md")
}

// LoadText produces the raw text for in, writing a copy to outputDir. Text
// inputs are copied; image inputs are transcribed unless SkipOCR is set.
func (r *Runtime) LoadText(ctx context.Context, in Input, outputDir string) (string, error) {
	if strings.TrimSpace(in.Path) == "" {
		return "", services.Wrap(services.ErrValidation, "pipeline", "load input", "input path is required", nil)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	textPath := in.TextPath(outputDir)

	switch {
	case in.IsText():
		if filepath.Clean(in.Path) != filepath.Clean(textPath) {
			if err := fileutil.CopyFile(in.Path, textPath); err != nil {
				return "", services.Wrap(services.ErrValidation, "pipeline", "load input", in.Path, err)
			}
		}
	case in.SkipOCR:
		if _, err := os.Stat(textPath); err != nil {
			shared := in.TextPath(r.Config.OutputDir(in.Path))
			if shared == textPath {
				return "", services.Wrap(services.ErrValidation, "pipeline", "load input",
					fmt.Sprintf("--skip-ocr needs %s from an earlier OCR pass", textPath), err)
			}
			if err := fileutil.CopyFile(shared, textPath); err != nil {
				return "", services.Wrap(services.ErrValidation, "pipeline", "load input",
					fmt.Sprintf("--skip-ocr needs %s from an earlier OCR pass", shared), err)
			}
		}
	default:
		result, err := ocr.Run(ctx, ocr.DirSource{Path: in.Path}, r.Generator, ocr.Options{
			Model:   r.Config.Models.OCR,
			Workers: r.Config.Pipeline.OCRWorkers,
			Logger:  r.Logger,
		})
		if err != nil {
			return "", err
		}
		if err := fileutil.WriteFileAtomic(textPath, []byte(result.Text), 0o644); err != nil {
			return "", fmt.Errorf("write transcription: %w", err)
		}
		r.Logger.Info("transcription saved",
			logging.String(logging.FieldEventType, "ocr_saved"),
			logging.String("path", textPath),
			logging.Int("pages", result.Pages),
		)
	}

	data, err := os.ReadFile(textPath)
	if err != nil {
		return "", fmt.Errorf("read raw text: %w", err)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", services.Wrap(services.ErrValidation, "pipeline", "load input", fmt.Sprintf("%s is empty", textPath), nil)
	}
	return text, nil
}

// Prepare loads in and returns a fresh run state with the store it writes to.
// Checkpoints and final artifacts left by an earlier run are cleared first.
func (r *Runtime) Prepare(ctx context.Context, in Input) (*state.State, *checkpoint.Store, error) {
	store := r.Store(in)
	if err := store.Clear(); err != nil {
		return nil, nil, err
	}
	text, err := r.LoadText(ctx, in, store.Root())
	if err != nil {
		return nil, nil, err
	}
	return state.New(in.Path, text), store, nil
}

// Resume rehydrates the latest successful checkpoint for in. It returns
// services.ErrNotFound when the input has never been started.
func (r *Runtime) Resume(in Input) (*state.State, *checkpoint.Store, string, error) {
	store := r.Store(in)
	st, name, found, err := store.Latest()
	if err != nil {
		return nil, nil, "", err
	}
	if !found {
		return nil, nil, "", services.Wrap(services.ErrNotFound, "pipeline", "resume",
			fmt.Sprintf("no checkpoint under %s", store.Root()), nil)
	}
	return st, store, name, nil
}
