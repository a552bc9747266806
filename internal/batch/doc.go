// Package batch drives the per-page transcription loop: consult the ledger,
// rasterize pending pages, submit them through the retry-wrapped backend,
// persist outputs, and record outcomes.
//
// Pages are independent; a bounded worker pool overlaps network latency, and
// per-page failures degrade to failure records instead of aborting the run.
// Only ledger faults, cancellation, and a document that cannot be read at the
// start of a run are fatal.
package batch
