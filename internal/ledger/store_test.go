package ledger_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"folio/internal/ledger"
	"folio/internal/services"
	"folio/internal/testsupport"
)

func TestOpenInitializesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	done, err := store.IsDone(ctx, "codex-119", 1)
	if err != nil {
		t.Fatalf("IsDone failed: %v", err)
	}
	if done {
		t.Fatal("expected empty ledger")
	}
}

func TestMarkDoneAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	err := store.MarkDone(ctx, ledger.Entry{
		Document: "codex-119",
		Page:     3,
		ModelKey: "gemini-flash",
		Provider: "google",
		RunID:    "run-1",
	})
	if err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	entry, err := store.Get(ctx, "codex-119", 3)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry == nil {
		t.Fatal("expected entry")
	}
	if entry.Status != ledger.StatusSuccess {
		t.Fatalf("unexpected status %q", entry.Status)
	}
	if entry.ModelKey != "gemini-flash" || entry.Provider != "google" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	if entry.UpdatedAt.IsZero() {
		t.Fatal("expected UpdatedAt to be set")
	}

	done, err := store.IsDone(ctx, "codex-119", 3)
	if err != nil {
		t.Fatalf("IsDone failed: %v", err)
	}
	if !done {
		t.Fatal("expected page to be done")
	}
}

func TestUpsertKeepsOneRowPerPage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		testsupport.MarkDone(t, store, "codex-119", 1)
	}

	entries, err := store.ListByDocument(ctx, "codex-119")
	if err != nil {
		t.Fatalf("ListByDocument failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one row, got %d", len(entries))
	}
}

func TestMarkFailedRecordsError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	err := store.MarkFailed(ctx, ledger.Entry{
		Document:     "codex-119",
		Page:         2,
		ModelKey:     "gemini-flash",
		Provider:     "google",
		RunID:        "run-1",
		ErrorMessage: "transient failure: backend: submit: 503",
	})
	if err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	entry, err := store.Get(ctx, "codex-119", 2)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry == nil || entry.Status != ledger.StatusFailure {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	if entry.ErrorMessage == "" {
		t.Fatal("expected error message to survive")
	}
}

func TestMarkFailedNeverDemotesSuccess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MarkDone(t, store, "codex-119", 5)
	err := store.MarkFailed(ctx, ledger.Entry{
		Document:     "codex-119",
		Page:         5,
		ModelKey:     "gemini-flash",
		Provider:     "google",
		RunID:        "run-2",
		ErrorMessage: "should be ignored",
	})
	if err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	entry, err := store.Get(ctx, "codex-119", 5)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.Status != ledger.StatusSuccess {
		t.Fatalf("success row was demoted: %#v", entry)
	}
	if entry.ErrorMessage != "" || entry.RunID == "run-2" {
		t.Fatalf("failed attempt leaked into the success row: %#v", entry)
	}
}

func TestMarkFailedRacingMarkDoneKeepsSuccess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MarkDone(t, store, "codex-119", 7)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(attempt int) {
			defer wg.Done()
			err := store.MarkFailed(ctx, ledger.Entry{
				Document:     "codex-119",
				Page:         7,
				RunID:        fmt.Sprintf("run-%d", attempt),
				ErrorMessage: "late failure",
			})
			if err != nil {
				t.Errorf("MarkFailed failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	entry, err := store.Get(ctx, "codex-119", 7)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.Status != ledger.StatusSuccess {
		t.Fatalf("success row was demoted: %#v", entry)
	}
}

func TestMarkDonePromotesFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	err := store.MarkFailed(ctx, ledger.Entry{
		Document: "codex-119", Page: 2, ModelKey: "gemini-flash",
		Provider: "google", RunID: "run-1", ErrorMessage: "boom",
	})
	if err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	testsupport.MarkDone(t, store, "codex-119", 2)

	entry, err := store.Get(ctx, "codex-119", 2)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.Status != ledger.StatusSuccess {
		t.Fatalf("expected promotion to success, got %#v", entry)
	}
	if entry.ErrorMessage != "" {
		t.Fatalf("expected error message cleared, got %q", entry.ErrorMessage)
	}
}

func TestConcurrentWritersOneRowPerPage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const pages = 8
	var wg sync.WaitGroup
	errs := make(chan error, pages)
	for page := 1; page <= pages; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			errs <- store.MarkDone(ctx, ledger.Entry{
				Document: "codex-119",
				Page:     page,
				ModelKey: "gemini-flash",
				Provider: "google",
				RunID:    "run-1",
			})
		}(page)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent MarkDone failed: %v", err)
		}
	}

	entries, err := store.ListByDocument(ctx, "codex-119")
	if err != nil {
		t.Fatalf("ListByDocument failed: %v", err)
	}
	if len(entries) != pages {
		t.Fatalf("expected %d rows, got %d", pages, len(entries))
	}
}

func TestSummariesAggregateCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MarkDone(t, store, "codex-119", 1)
	testsupport.MarkDone(t, store, "codex-119", 3)
	if err := store.MarkFailed(ctx, ledger.Entry{
		Document: "codex-119", Page: 2, ModelKey: "gemini-flash",
		Provider: "google", RunID: "run-1", ErrorMessage: "boom",
	}); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	testsupport.MarkDone(t, store, "psalter", 1)

	summaries, err := store.Summaries(ctx)
	if err != nil {
		t.Fatalf("Summaries failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected two documents, got %d", len(summaries))
	}
	byDoc := make(map[string]ledger.Summary, len(summaries))
	for _, summary := range summaries {
		byDoc[summary.Document] = summary
	}
	codex := byDoc["codex-119"]
	if codex.Succeeded != 2 || codex.Failed != 1 {
		t.Fatalf("unexpected codex summary: %#v", codex)
	}
	if codex.LastModel != "gemini-flash" {
		t.Fatalf("unexpected last model %q", codex.LastModel)
	}
}

func TestOpenRejectsCorruptDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if err := os.WriteFile(cfg.LedgerPath(), []byte("not a sqlite database"), 0o644); err != nil {
		t.Fatalf("write bogus ledger: %v", err)
	}

	_, err := ledger.Open(cfg)
	if err == nil {
		t.Fatal("expected error for corrupt ledger")
	}
	if !services.IsFatal(err) {
		t.Fatalf("expected fatal classification, got %v", err)
	}
}
