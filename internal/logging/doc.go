// Package logging wires slog handlers for console and JSON output, plus the
// shared field-name constants the pipeline logs with.
package logging
