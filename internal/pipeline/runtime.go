// Package pipeline assembles the collaborators of a run from configuration:
// the generator client, the stage handlers, the run ledger, and the driver.
// Both the CLI and the server build their runs through a Runtime.
package pipeline

import (
	"fmt"
	"log/slog"
	"strings"

	"docpipe/internal/checkpoint"
	"docpipe/internal/config"
	"docpipe/internal/ledger"
	"docpipe/internal/logging"
	"docpipe/internal/metrics"
	"docpipe/internal/ocr"
	"docpipe/internal/retry"
	"docpipe/internal/services/llm"
	"docpipe/internal/stages"
	"docpipe/internal/workflow"
)

// Generator is what a run needs from the completion service.
type Generator interface {
	stages.Generator
	ocr.Transcriber
}

// Runtime holds the long-lived collaborators shared by every run.
type Runtime struct {
	Config    *config.Config
	Generator Generator
	Stages    *stages.Set
	Ledger    *ledger.Store
	Pool      *workflow.Pool
	Logger    *slog.Logger
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithGenerator replaces the HTTP generator client.
func WithGenerator(gen Generator) Option {
	return func(r *Runtime) {
		if gen != nil {
			r.Generator = gen
		}
	}
}

// WithLedger records runs in store.
func WithLedger(store *ledger.Store) Option {
	return func(r *Runtime) {
		r.Ledger = store
	}
}

// WithPool shares pool between the runs of this runtime.
func WithPool(pool *workflow.Pool) Option {
	return func(r *Runtime) {
		if pool != nil {
			r.Pool = pool
		}
	}
}

// NewRuntime builds a runtime from cfg.
func NewRuntime(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	set, err := stages.NewSet(stages.SettingsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		Config: cfg,
		Stages: set,
		Logger: logger,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.Generator == nil {
		rt.Generator = NewClient(cfg, logger)
	}
	if rt.Pool == nil {
		rt.Pool = workflow.NewPool(cfg.Server.Workers)
	}
	return rt, nil
}

// NewClient builds the HTTP generator client with the configured transport
// retry policy and metrics recording.
func NewClient(cfg *config.Config, logger *slog.Logger) *llm.Client {
	policy := retry.Transport(cfg.Retry.TransportMaxAttempts, cfg.InitialBackoff(), cfg.Retry.BackoffMultiplier)
	policy.MaxDelay = cfg.MaxBackoff()
	return llm.NewClient(llm.Config{
		APIKey:         cfg.Generator.APIKey,
		BaseURL:        cfg.Generator.BaseURL,
		TimeoutSeconds: cfg.Generator.TimeoutSeconds,
		MaxTokens:      cfg.Generator.MaxTokens,
	},
		llm.WithRetryPolicy(policy),
		llm.WithLogger(logger),
		llm.WithRecorder(metrics.Recorder{}),
	)
}

// Store returns the checkpoint store for in.
func (r *Runtime) Store(in Input) *checkpoint.Store {
	if dir := strings.TrimSpace(in.OutputDir); dir != "" {
		return checkpoint.NewStore(dir)
	}
	return checkpoint.NewStore(r.Config.OutputDir(in.Path))
}

// Driver returns a driver writing to store, observed by the ledger (when
// present) and the metrics collectors.
func (r *Runtime) Driver(store *checkpoint.Store, opts ...workflow.Option) *workflow.Driver {
	base := []workflow.Option{
		workflow.WithLogger(r.Logger),
		workflow.WithPool(r.Pool),
		workflow.WithObserver(metrics.Observer{}),
	}
	if r.Ledger != nil {
		base = append(base, workflow.WithObserver(ledger.NewObserver(r.Ledger, r.Logger)))
	}
	return workflow.NewDriver(r.Stages, r.Generator, store, workflow.SettingsFromConfig(r.Config), append(base, opts...)...)
}
