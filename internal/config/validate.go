package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGenerator(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

// RequireAPIKey reports a descriptive error when no generator credential is configured.
// Commands that never contact the generator skip this check.
func (c *Config) RequireAPIKey() error {
	if c.Generator.APIKey != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/docpipe/config.toml"
	}
	return fmt.Errorf("generator.api_key is required. Set DOCPIPE_API_KEY (or REGOLO_API_KEY) or edit %s (create with 'docpipe config init')", defaultPath)
}

func (c *Config) validateGenerator() error {
	parsed, err := url.Parse(c.Generator.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("generator.base_url must be an absolute URL, got %q", c.Generator.BaseURL)
	}
	if c.Generator.TimeoutSeconds < 0 {
		return errors.New("generator.timeout_seconds must be positive")
	}
	if c.Generator.MaxTokens < 0 {
		return errors.New("generator.max_tokens must be positive")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.TransportMaxAttempts < 1 {
		return errors.New("retry.transport_max_attempts must be at least 1")
	}
	if c.Retry.StageMaxAttempts < 1 {
		return errors.New("retry.stage_max_attempts must be at least 1")
	}
	if c.Retry.InitialBackoffSeconds < 0 {
		return errors.New("retry.initial_backoff_seconds must be zero or positive")
	}
	if c.Retry.BackoffMultiplier < 1 {
		return errors.New("retry.backoff_multiplier must be at least 1")
	}
	if c.Retry.MaxBackoffSeconds < 0 {
		return errors.New("retry.max_backoff_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.ConfidenceThreshold < 0 || c.Pipeline.ConfidenceThreshold > 1 {
		return errors.New("pipeline.confidence_threshold must be between 0 and 1")
	}
	if c.Pipeline.OCRWorkers < 1 {
		return errors.New("pipeline.ocr_workers must be at least 1")
	}
	switch c.Pipeline.FailurePolicy {
	case FailurePolicyRetry, FailurePolicyReport:
	default:
		return fmt.Errorf("pipeline.failure_policy: unsupported value %q (want %q or %q)", c.Pipeline.FailurePolicy, FailurePolicyRetry, FailurePolicyReport)
	}
	return nil
}

func (c *Config) validateServer() error {
	if !strings.Contains(c.Server.Bind, ":") {
		return fmt.Errorf("server.bind must be host:port, got %q", c.Server.Bind)
	}
	if c.Server.Workers < 1 {
		return errors.New("server.workers must be at least 1")
	}
	if c.Server.EventBuffer < 1 {
		return errors.New("server.event_buffer must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
