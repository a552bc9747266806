package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGemini()
	c.normalizeAnthropic()
	c.normalizeTranscribe()
	c.normalizeRetry()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.InputDir) == "" {
		c.Paths.InputDir = defaultInputDir
	}
	if c.Paths.InputDir, err = expandPath(c.Paths.InputDir); err != nil {
		return fmt.Errorf("paths.input_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeGemini() {
	if c.Gemini.APIKey == "" {
		if value, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
			c.Gemini.APIKey = value
		}
	}
	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	c.Gemini.BaseURL = strings.TrimSpace(c.Gemini.BaseURL)
	c.Gemini.Model = strings.TrimSpace(c.Gemini.Model)
}

func (c *Config) normalizeAnthropic() {
	if c.Anthropic.APIKey == "" {
		if value, ok := os.LookupEnv("ANTHROPIC_API_KEY"); ok {
			c.Anthropic.APIKey = value
		}
	}
	c.Anthropic.APIKey = strings.TrimSpace(c.Anthropic.APIKey)
	c.Anthropic.BaseURL = strings.TrimSpace(c.Anthropic.BaseURL)
	c.Anthropic.Model = strings.TrimSpace(c.Anthropic.Model)
}

func (c *Config) normalizeTranscribe() {
	c.Transcribe.Model = strings.ToLower(strings.TrimSpace(c.Transcribe.Model))
	if c.Transcribe.Model == "" {
		c.Transcribe.Model = defaultModel
	}
	c.Transcribe.ReasoningDepth = strings.ToLower(strings.TrimSpace(c.Transcribe.ReasoningDepth))
	if c.Transcribe.ReasoningDepth == "" {
		c.Transcribe.ReasoningDepth = defaultReasoningDepth
	}
	if c.Transcribe.DPI <= 0 {
		c.Transcribe.DPI = defaultDPI
	}
	if c.Transcribe.Workers <= 0 {
		c.Transcribe.Workers = defaultWorkers
	}
	if c.Transcribe.RequestDelaySeconds < 0 {
		c.Transcribe.RequestDelaySeconds = defaultRequestDelaySeconds
	}
	if c.Transcribe.TimeoutSeconds <= 0 {
		c.Transcribe.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Transcribe.MaxOutputTokens <= 0 {
		c.Transcribe.MaxOutputTokens = defaultMaxOutputTokens
	}
}

func (c *Config) normalizeRetry() {
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = defaultRetryMaxAttempts
	}
	if c.Retry.BaseDelaySeconds <= 0 {
		c.Retry.BaseDelaySeconds = defaultRetryBaseDelay
	}
	if c.Retry.MaxDelaySeconds <= 0 {
		c.Retry.MaxDelaySeconds = defaultRetryMaxDelay
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
