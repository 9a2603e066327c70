package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputRoot string `toml:"output_root"`
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
}

// Generator contains connection settings for the completion service.
type Generator struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxTokens      int    `toml:"max_tokens"`
}

// Models maps each pipeline step to a generator model identifier.
type Models struct {
	OCR         string `toml:"ocr"`
	Segment     string `toml:"segment"`
	Normalize   string `toml:"normalize"`
	MapToSchema string `toml:"map_to_schema"`
	Review      string `toml:"review"`
}

// Retry configures the backoff schedule shared by the transport and stage
// retry layers. Only the attempt budgets differ between the two.
type Retry struct {
	TransportMaxAttempts  int     `toml:"transport_max_attempts"`
	StageMaxAttempts      int     `toml:"stage_max_attempts"`
	InitialBackoffSeconds float64 `toml:"initial_backoff_seconds"`
	BackoffMultiplier     float64 `toml:"backoff_multiplier"`
	// MaxBackoffSeconds caps a single delay; 0 disables the cap.
	MaxBackoffSeconds float64 `toml:"max_backoff_seconds"`
}

// Pipeline contains stage execution settings.
type Pipeline struct {
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	OCRWorkers          int     `toml:"ocr_workers"`
	FailurePolicy       string  `toml:"failure_policy"`
}

// Server contains settings for the HTTP server mode.
type Server struct {
	Bind        string `toml:"bind"`
	Workers     int    `toml:"workers"`
	EventBuffer int    `toml:"event_buffer"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for docpipe.
//
// Configuration sections by subsystem:
//   - Paths: output root, ledger data directory, log directory
//   - Generator: completion service endpoint and credentials
//   - Models: model identifier per pipeline step
//   - Retry: attempt budgets and backoff schedule
//   - Pipeline: thresholds, OCR parallelism, event-mode failure policy
//   - Server: HTTP bind address and worker pool size
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Generator Generator `toml:"generator"`
	Models    Models    `toml:"models"`
	Retry     Retry     `toml:"retry"`
	Pipeline  Pipeline  `toml:"pipeline"`
	Server    Server    `toml:"server"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/docpipe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("docpipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the CLI and server write to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputRoot, c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath returns the location of the SQLite run ledger.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.DataDir, "ledger.db")
}

// OutputDir returns the per-input output area, output-<stem> under the output root.
func (c *Config) OutputDir(input string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(c.Paths.OutputRoot, "output-"+stem)
}

// ModelFor returns the configured model for a pipeline step name.
func (c *Config) ModelFor(step string) string {
	switch step {
	case "ocr":
		return c.Models.OCR
	case "segment":
		return c.Models.Segment
	case "normalize":
		return c.Models.Normalize
	case "map-to-schema", "map_to_schema":
		return c.Models.MapToSchema
	case "review":
		return c.Models.Review
	default:
		return ""
	}
}

// GeneratorTimeout returns the per-request timeout for generator exchanges.
func (c *Config) GeneratorTimeout() time.Duration {
	return time.Duration(c.Generator.TimeoutSeconds) * time.Second
}

// InitialBackoff returns the first retry delay.
func (c *Config) InitialBackoff() time.Duration {
	return secondsDuration(c.Retry.InitialBackoffSeconds)
}

// MaxBackoff returns the per-delay cap, or 0 when uncapped.
func (c *Config) MaxBackoff() time.Duration {
	return secondsDuration(c.Retry.MaxBackoffSeconds)
}

func secondsDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML with the API key redacted.
func (c *Config) Encode() ([]byte, error) {
	clone := *c
	if clone.Generator.APIKey != "" {
		clone.Generator.APIKey = "********"
	}
	return toml.Marshal(clone)
}
