package testsupport

import (
	"path/filepath"
	"testing"

	"docpipe/internal/config"
)

// Distinct model identifiers so stub generators can tell stages apart.
const (
	ModelOCR         = "test-ocr"
	ModelSegment     = "test-segment"
	ModelNormalize   = "test-normalize"
	ModelMapToSchema = "test-map"
	ModelReview      = "test-review"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test,
// millisecond backoff, and one model per stage.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Generator.APIKey = "test"
	cfgVal.Generator.BaseURL = "http://127.0.0.1:0"
	cfgVal.Paths.OutputRoot = filepath.Join(base, "out")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Models = config.Models{
		OCR:         ModelOCR,
		Segment:     ModelSegment,
		Normalize:   ModelNormalize,
		MapToSchema: ModelMapToSchema,
		Review:      ModelReview,
	}
	cfgVal.Retry.InitialBackoffSeconds = 0.001
	cfgVal.Retry.BackoffMultiplier = 2
	cfgVal.Server.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithStageAttempts overrides the stage retry budget.
func WithStageAttempts(attempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retry.StageMaxAttempts = attempts
	}
}

// WithFailurePolicy sets the event-mode failure policy.
func WithFailurePolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.FailurePolicy = policy
	}
}

// WithGeneratorURL points the generator at a test server.
func WithGeneratorURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Generator.BaseURL = url
	}
}
