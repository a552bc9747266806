package ledger

import "time"

// Status records the last known outcome for a (document, page) pair.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Entry is one ledger row. Exactly one entry exists per (document, page);
// writes are idempotent upserts with last-write-wins semantics.
type Entry struct {
	Document     string
	Page         int
	Status       Status
	ModelKey     string
	Provider     string
	RunID        string
	ErrorMessage string
	UpdatedAt    time.Time
}

// Summary aggregates ledger counts for one document.
type Summary struct {
	Document    string    `json:"document"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	LastModel   string    `json:"last_model"`
	LastUpdated time.Time `json:"last_updated"`
}
