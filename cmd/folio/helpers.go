package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"folio/internal/backend"
	"folio/internal/backend/anthropic"
	"folio/internal/backend/gemini"
	"folio/internal/config"
	"folio/internal/retry"
)

// newBackend builds the provider client for the selected model. The
// wire-level model name comes from the catalog unless the provider section
// of the config overrides it.
func newBackend(cfg *config.Config, spec backend.ModelSpec) (backend.Backend, string, error) {
	timeout := time.Duration(cfg.Transcribe.TimeoutSeconds) * time.Second
	switch spec.Provider {
	case backend.ProviderGoogle:
		provider := cfg.GeminiProvider()
		opts := []gemini.Option{gemini.WithTimeout(timeout)}
		if provider.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(provider.BaseURL))
		}
		client, err := gemini.NewClient(provider.APIKey, opts...)
		if err != nil {
			return nil, "", err
		}
		return client, modelName(spec, provider), nil
	case backend.ProviderAnthropic:
		provider := cfg.AnthropicProvider()
		opts := []anthropic.Option{anthropic.WithTimeout(timeout)}
		if provider.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(provider.BaseURL))
		}
		client, err := anthropic.NewClient(provider.APIKey, opts...)
		if err != nil {
			return nil, "", err
		}
		return client, modelName(spec, provider), nil
	default:
		return nil, "", fmt.Errorf("model %s has unknown provider %q", spec.Key, spec.Provider)
	}
}

func modelName(spec backend.ModelSpec, provider config.ProviderConfig) string {
	if provider.Model != "" {
		return provider.Model
	}
	return spec.Name
}

func newRetryPolicy(cfg *config.Config) retry.Policy {
	return retry.New(
		cfg.Retry.MaxAttempts,
		secondsDuration(cfg.Retry.BaseDelaySeconds),
		secondsDuration(cfg.Retry.MaxDelaySeconds),
	)
}

func secondsDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// resolveInputs expands a path argument into the list of PDFs to process.
// A relative path that does not exist in the working directory is retried
// against the configured input directory; an empty argument means the whole
// input directory.
func resolveInputs(cfg *config.Config, arg string) ([]string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return listPDFs(cfg.Paths.InputDir)
	}

	candidate, err := config.ExpandPath(arg)
	if err != nil {
		return nil, err
	}
	info, statErr := os.Stat(candidate)
	if statErr != nil && !filepath.IsAbs(candidate) && cfg.Paths.InputDir != "" {
		fallback := filepath.Join(cfg.Paths.InputDir, arg)
		if fallbackInfo, fallbackErr := os.Stat(fallback); fallbackErr == nil {
			candidate, info, statErr = fallback, fallbackInfo, nil
		}
	}
	if statErr != nil {
		return nil, fmt.Errorf("input %s not found", arg)
	}

	if info.IsDir() {
		return listPDFs(candidate)
	}
	if !strings.EqualFold(filepath.Ext(candidate), ".pdf") {
		return nil, fmt.Errorf("input %s is not a PDF", candidate)
	}
	return []string{candidate}, nil
}

func listPDFs(dir string) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("no input directory configured")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory %s: %w", dir, err)
	}
	var pdfs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			pdfs = append(pdfs, filepath.Join(dir, entry.Name()))
		}
	}
	if len(pdfs) == 0 {
		return nil, fmt.Errorf("no PDF files found in %s", dir)
	}
	sort.Strings(pdfs)
	return pdfs, nil
}
