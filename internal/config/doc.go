// Package config loads and validates folio's TOML configuration.
//
// Load resolves the config file (explicit flag, ~/.config/folio/config.toml,
// or folio.toml in the working directory), merges it over Default(), expands
// and absolutizes all paths, fills provider API keys from the environment
// when the file leaves them empty, and validates the result. Components
// receive the resulting *Config explicitly; nothing reads the environment
// after load.
package config
