package config

import (
	"errors"
	"fmt"
)

var validReasoningDepths = map[string]struct{}{
	"low":    {},
	"medium": {},
	"high":   {},
}

var validLogFormats = map[string]struct{}{
	"console": {},
	"json":    {},
}

// Validate ensures the configuration is usable. API keys are deliberately not
// validated here: which key is required depends on the model selected at run
// time, and the backend registry reports a configuration error when the
// chosen provider is missing its key.
func (c *Config) Validate() error {
	if err := c.validateTranscribe(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateTranscribe() error {
	if _, ok := validReasoningDepths[c.Transcribe.ReasoningDepth]; !ok {
		return fmt.Errorf("transcribe.reasoning_depth must be low, medium, or high (got %q)", c.Transcribe.ReasoningDepth)
	}
	if c.Transcribe.DPI < 72 || c.Transcribe.DPI > 600 {
		return fmt.Errorf("transcribe.dpi must be between 72 and 600 (got %d)", c.Transcribe.DPI)
	}
	if c.Transcribe.Workers > 16 {
		return fmt.Errorf("transcribe.workers must be 16 or fewer (got %d)", c.Transcribe.Workers)
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts > 20 {
		return fmt.Errorf("retry.max_attempts must be 20 or fewer (got %d)", c.Retry.MaxAttempts)
	}
	if c.Retry.MaxDelaySeconds < c.Retry.BaseDelaySeconds {
		return errors.New("retry.max_delay_seconds must be at least retry.base_delay_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, ok := validLogFormats[c.Logging.Format]; !ok {
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	return nil
}
