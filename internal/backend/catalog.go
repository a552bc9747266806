package backend

import (
	"fmt"
	"sort"
	"strings"
)

// Provider identifiers used in records and ledger rows.
const (
	ProviderGoogle    = "google"
	ProviderAnthropic = "anthropic"
)

// ModelSpec describes one catalog entry: a short key users select, the
// provider-facing model name, and an indicative per-page cost in USD.
type ModelSpec struct {
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Provider    string  `json:"provider"`
	CostPerPage float64 `json:"cost_per_page"`
}

var catalog = map[string]ModelSpec{
	"gemini-flash": {
		Key:         "gemini-flash",
		Name:        "gemini-2.0-flash",
		Provider:    ProviderGoogle,
		CostPerPage: 0.002,
	},
	"gemini-pro": {
		Key:         "gemini-pro",
		Name:        "gemini-1.5-pro",
		Provider:    ProviderGoogle,
		CostPerPage: 0.01,
	},
	"claude-sonnet": {
		Key:         "claude-sonnet",
		Name:        "claude-sonnet-4-20250514",
		Provider:    ProviderAnthropic,
		CostPerPage: 0.006,
	},
	"claude-opus": {
		Key:         "claude-opus",
		Name:        "claude-opus-4-5-20251101",
		Provider:    ProviderAnthropic,
		CostPerPage: 0.03,
	},
}

// DefaultModelKey is used when neither config nor flags pick a model.
const DefaultModelKey = "gemini-flash"

// Lookup resolves a catalog key.
func Lookup(key string) (ModelSpec, error) {
	spec, ok := catalog[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return ModelSpec{}, fmt.Errorf("unknown model %q (known: %s)", key, strings.Join(Keys(), ", "))
	}
	return spec, nil
}

// Keys returns catalog keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(catalog))
	for key := range catalog {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Catalog returns all model specs in key order.
func Catalog() []ModelSpec {
	specs := make([]ModelSpec, 0, len(catalog))
	for _, key := range Keys() {
		specs = append(specs, catalog[key])
	}
	return specs
}
