// Package services defines shared utilities consumed by the transcription
// pipeline and the provider backends.
//
// Key responsibilities:
//   - Structured error markers plus the Wrap helper that classify failures
//     into the retry taxonomy (transient vs permanent vs content policy).
//   - Context helpers that stamp document identifiers, page numbers, and run
//     correlation IDs for logging.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error classification, observability, retries) stays uniform.
package services
