// Package backend defines the transcription backend contract shared by all
// provider variants, the model catalog users select from, and the HTTP error
// classification that feeds the retry policy.
//
// Provider implementations live in subpackages (gemini, anthropic). Each
// makes exactly one outbound call per Submit and never retries internally;
// the retry package wraps backends with backoff.
package backend
