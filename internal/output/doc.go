// Package output persists per-page transcription artifacts: a structured
// JSON record carrying all metadata and a plain-text file with a comment
// header plus the transcription body. Writes are atomic per page.
package output
