// Package ocr turns page images into the raw text a pipeline run starts from.
// Pages are transcribed concurrently by the generator's vision model and
// stitched back together in page order.
package ocr

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docpipe/internal/logging"
	"docpipe/internal/services"
)

// DefaultWorkers is the page concurrency used when none is configured.
const DefaultWorkers = 4

// Transcriber converts one page image to text.
type Transcriber interface {
	Transcribe(ctx context.Context, model string, image []byte, mimeType string) (string, error)
}

// Options configures a transcription run.
type Options struct {
	Model   string
	Workers int
	Logger  *slog.Logger
}

// PageError records a page that could not be transcribed.
type PageError struct {
	Page int
	Name string
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d (%s): %v", e.Page, e.Name, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Result is the stitched transcription.
type Result struct {
	Text    string
	Pages   int
	Elapsed time.Duration
}

// Run transcribes every page of source. Any failed page fails the run; the
// returned error joins one PageError per failed page.
func Run(ctx context.Context, source Source, transcriber Transcriber, opts Options) (Result, error) {
	if source == nil || transcriber == nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "ocr", "run", "source and transcriber are required", nil)
	}
	if strings.TrimSpace(opts.Model) == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "ocr", "run", "ocr model is required", nil)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ocr")

	started := time.Now()
	pages, err := source.Pages(ctx)
	if err != nil {
		return Result{}, err
	}
	logger.Info("ocr started",
		logging.String(logging.FieldEventType, "ocr_start"),
		logging.Int("pages", len(pages)),
		logging.Int("workers", workers),
	)

	texts := make([]string, len(pages))
	var (
		mu     sync.Mutex
		failed []*PageError
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, page := range pages {
		g.Go(func() error {
			text, err := transcriber.Transcribe(gctx, opts.Model, page.Data, page.MIME)
			if err != nil {
				mu.Lock()
				failed = append(failed, &PageError{Page: page.Number, Name: page.Name, Err: err})
				mu.Unlock()
				logging.WarnWithContext(logger, "page transcription failed", "ocr_page_failed",
					logging.Int("page", page.Number),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the page image and the ocr model"),
				)
				return nil
			}
			texts[i] = strings.TrimSpace(text)
			logger.Debug("page transcribed", logging.Int("page", page.Number), logging.Int("chars", len(text)))
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(failed) > 0 {
		slices.SortFunc(failed, func(a, b *PageError) int { return cmp.Compare(a.Page, b.Page) })
		errs := make([]error, 0, len(failed))
		for _, pageErr := range failed {
			errs = append(errs, pageErr)
		}
		return Result{}, fmt.Errorf("ocr: %d of %d pages failed: %w", len(failed), len(pages), errors.Join(errs...))
	}

	result := Result{
		Text:    Join(pages, texts),
		Pages:   len(pages),
		Elapsed: time.Since(started),
	}
	logger.Info("ocr completed",
		logging.String(logging.FieldEventType, "ocr_complete"),
		logging.Int("pages", result.Pages),
		logging.Int("chars", len(result.Text)),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// Join stitches page texts in page order, each preceded by a page marker.
func Join(pages []Page, texts []string) string {
	var b strings.Builder
	for i, page := range pages {
		fmt.Fprintf(&b, "\n\n--- Page %d ---\n\n", page.Number)
		if i < len(texts) {
			b.WriteString(texts[i])
		}
	}
	return strings.TrimSpace(b.String())
}
