package config

const (
	defaultOutputRoot            = "."
	defaultDataDir               = "~/.local/share/docpipe"
	defaultLogDir                = "~/.local/share/docpipe/logs"
	defaultBaseURL               = "https://api.regolo.ai/v1"
	defaultTimeoutSeconds        = 300
	defaultMaxTokens             = 4096
	defaultOCRModel              = "deepseek-ocr"
	defaultBigModel              = "gpt-oss-120b"
	defaultLightModel            = "mistral-small3.2"
	defaultTransportMaxAttempts  = 3
	defaultStageMaxAttempts      = 3
	defaultInitialBackoffSeconds = 2
	defaultBackoffMultiplier     = 2
	defaultConfidenceThreshold   = 0.7
	defaultOCRWorkers            = 4
	defaultFailurePolicy         = FailurePolicyRetry
	defaultServerBind            = "127.0.0.1:8765"
	defaultServerWorkers         = 4
	defaultEventBuffer           = 512
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Failure policies for event-driven runs.
const (
	// FailurePolicyRetry waits through the backoff interval and re-invokes
	// the failed stage.
	FailurePolicyRetry = "retry"
	// FailurePolicyReport waits through the backoff schedule emitting
	// progress messages, then reports the failure without re-invoking.
	FailurePolicyReport = "report"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputRoot: defaultOutputRoot,
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
		},
		Generator: Generator{
			BaseURL:        defaultBaseURL,
			TimeoutSeconds: defaultTimeoutSeconds,
			MaxTokens:      defaultMaxTokens,
		},
		Models: Models{
			OCR:         defaultOCRModel,
			Segment:     defaultBigModel,
			Normalize:   defaultLightModel,
			MapToSchema: defaultBigModel,
			Review:      defaultLightModel,
		},
		Retry: Retry{
			TransportMaxAttempts:  defaultTransportMaxAttempts,
			StageMaxAttempts:      defaultStageMaxAttempts,
			InitialBackoffSeconds: defaultInitialBackoffSeconds,
			BackoffMultiplier:     defaultBackoffMultiplier,
		},
		Pipeline: Pipeline{
			ConfidenceThreshold: defaultConfidenceThreshold,
			OCRWorkers:          defaultOCRWorkers,
			FailurePolicy:       defaultFailurePolicy,
		},
		Server: Server{
			Bind:        defaultServerBind,
			Workers:     defaultServerWorkers,
			EventBuffer: defaultEventBuffer,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
