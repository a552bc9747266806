package config

const (
	defaultInputDir            = "~/archives"
	defaultOutputDir           = "~/.local/share/folio/output"
	defaultLogDir              = "~/.local/share/folio/logs"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultModel               = "gemini-flash"
	defaultReasoningDepth      = "low"
	defaultDPI                 = 150
	defaultWorkers             = 2
	defaultRequestDelaySeconds = 1.0
	defaultTimeoutSeconds      = 120
	defaultMaxOutputTokens     = 8192
	defaultRetryMaxAttempts    = 5
	defaultRetryBaseDelay      = 1.0
	defaultRetryMaxDelay       = 30.0
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InputDir:  defaultInputDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Transcribe: Transcribe{
			Model:               defaultModel,
			ReasoningDepth:      defaultReasoningDepth,
			DPI:                 defaultDPI,
			Workers:             defaultWorkers,
			RequestDelaySeconds: defaultRequestDelaySeconds,
			TimeoutSeconds:      defaultTimeoutSeconds,
			MaxOutputTokens:     defaultMaxOutputTokens,
		},
		Retry: Retry{
			MaxAttempts:      defaultRetryMaxAttempts,
			BaseDelaySeconds: defaultRetryBaseDelay,
			MaxDelaySeconds:  defaultRetryMaxDelay,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
