package testsupport

import (
	"context"
	"testing"

	"folio/internal/config"
	"folio/internal/ledger"
)

// MustOpenStore opens a ledger.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MarkDone records a success entry for tests.
func MarkDone(t testing.TB, store *ledger.Store, document string, page int) {
	t.Helper()

	err := store.MarkDone(context.Background(), ledger.Entry{
		Document: document,
		Page:     page,
		ModelKey: "gemini-flash",
		Provider: "google",
		RunID:    "test-run",
	})
	if err != nil {
		t.Fatalf("store.MarkDone: %v", err)
	}
}
