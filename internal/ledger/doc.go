// Package ledger persists per-page transcription status in SQLite so batches
// can resume after a restart without re-submitting completed pages.
//
// The Store keeps exactly one row per (document, page) via idempotent upserts;
// concurrent workers serialize on the single connection plus the busy_timeout
// pragma, so interleaved writes cannot lose updates. A page recorded as
// success is never demoted by a later failure.
//
// The database is the single source of truth for resume decisions. Schema
// changes bump schemaVersion in store.go; an existing database with another
// version, or one failing the integrity check, is rejected as corrupt rather
// than silently reinitialized.
package ledger
