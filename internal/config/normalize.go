package config

import (
	"fmt"
	"os"
	"strings"
)

// apiKeyEnvVars are consulted in order when generator.api_key is empty.
var apiKeyEnvVars = []string{"DOCPIPE_API_KEY", "REGOLO_API_KEY"}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGenerator()
	c.normalizeModels()
	c.normalizeRetry()
	c.normalizePipeline()
	c.normalizeServer()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputRoot) == "" {
		c.Paths.OutputRoot = defaultOutputRoot
	}
	if c.Paths.OutputRoot, err = expandPath(c.Paths.OutputRoot); err != nil {
		return fmt.Errorf("paths.output_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeGenerator() {
	c.Generator.APIKey = strings.TrimSpace(c.Generator.APIKey)
	if c.Generator.APIKey == "" {
		for _, name := range apiKeyEnvVars {
			if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
				c.Generator.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.Generator.BaseURL = strings.TrimRight(strings.TrimSpace(c.Generator.BaseURL), "/")
	if c.Generator.BaseURL == "" {
		c.Generator.BaseURL = defaultBaseURL
	}
	if c.Generator.TimeoutSeconds == 0 {
		c.Generator.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Generator.MaxTokens == 0 {
		c.Generator.MaxTokens = defaultMaxTokens
	}
}

func (c *Config) normalizeModels() {
	fill := func(value *string, fallback string) {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			*value = fallback
		}
	}
	fill(&c.Models.OCR, defaultOCRModel)
	fill(&c.Models.Segment, defaultBigModel)
	fill(&c.Models.Normalize, defaultLightModel)
	fill(&c.Models.MapToSchema, defaultBigModel)
	fill(&c.Models.Review, defaultLightModel)
}

func (c *Config) normalizeRetry() {
	if c.Retry.TransportMaxAttempts == 0 {
		c.Retry.TransportMaxAttempts = defaultTransportMaxAttempts
	}
	if c.Retry.StageMaxAttempts == 0 {
		c.Retry.StageMaxAttempts = defaultStageMaxAttempts
	}
	if c.Retry.BackoffMultiplier == 0 {
		c.Retry.BackoffMultiplier = defaultBackoffMultiplier
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.OCRWorkers == 0 {
		c.Pipeline.OCRWorkers = defaultOCRWorkers
	}
	c.Pipeline.FailurePolicy = strings.ToLower(strings.TrimSpace(c.Pipeline.FailurePolicy))
	if c.Pipeline.FailurePolicy == "" {
		c.Pipeline.FailurePolicy = defaultFailurePolicy
	}
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	if c.Server.Workers == 0 {
		c.Server.Workers = defaultServerWorkers
	}
	if c.Server.EventBuffer == 0 {
		c.Server.EventBuffer = defaultEventBuffer
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "text":
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
