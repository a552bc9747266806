package batch_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"folio/internal/backend"
	"folio/internal/batch"
	"folio/internal/ledger"
	"folio/internal/logging"
	"folio/internal/output"
	"folio/internal/retry"
	"folio/internal/services"
	"folio/internal/testsupport"
)

// fakeRenderer writes a marker file per page so the fake backend can tell
// pages apart by image content.
type fakeRenderer struct {
	pageCount int

	mu       sync.Mutex
	rendered []int
}

func (r *fakeRenderer) PageCount(string) (int, error) {
	if r.pageCount <= 0 {
		return 0, services.Wrap(services.ErrDocumentRead, "rasterize", "page count", "unreadable", nil)
	}
	return r.pageCount, nil
}

func (r *fakeRenderer) RenderPage(_ context.Context, _ string, page int, destDir string) (string, error) {
	r.mu.Lock()
	r.rendered = append(r.rendered, page)
	r.mu.Unlock()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(destDir, fmt.Sprintf("page-%04d.png", page))
	if err := os.WriteFile(path, []byte(fmt.Sprintf("page:%d", page)), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// fakeBackend returns scripted outcomes keyed by page number.
type fakeBackend struct {
	failures map[int]error
	onSubmit func(page int)

	mu        sync.Mutex
	submitted []int
}

func (b *fakeBackend) Provider() string { return "google" }

func (b *fakeBackend) Submit(ctx context.Context, image []byte, req backend.Request) (backend.Result, error) {
	var page int
	fmt.Sscanf(string(image), "page:%d", &page)

	b.mu.Lock()
	b.submitted = append(b.submitted, page)
	b.mu.Unlock()

	if b.onSubmit != nil {
		b.onSubmit(page)
	}
	if err := ctx.Err(); err != nil {
		return backend.Result{}, err
	}
	if err, ok := b.failures[page]; ok && err != nil {
		return backend.Result{}, err
	}
	return backend.Result{
		Text:     fmt.Sprintf("folio %d recto", page),
		Model:    req.Model,
		Provider: "google",
	}, nil
}

func (b *fakeBackend) submittedPages() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.submitted...)
}

type batchEnv struct {
	store    *ledger.Store
	writer   *output.Writer
	renderer *fakeRenderer
	backend  *fakeBackend
}

func newBatchEnv(t *testing.T, pageCount int, failures map[int]error) *batchEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	writer, err := output.NewWriter(cfg.Paths.OutputDir)
	if err != nil {
		t.Fatalf("output.NewWriter: %v", err)
	}
	return &batchEnv{
		store:    store,
		writer:   writer,
		renderer: &fakeRenderer{pageCount: pageCount},
		backend:  &fakeBackend{failures: failures},
	}
}

func (env *batchEnv) orchestrator(t *testing.T, opts batch.Options) *batch.Orchestrator {
	t.Helper()

	if opts.Model.Key == "" {
		opts.Model = backend.ModelSpec{
			Key:      "gemini-flash",
			Name:     "gemini-2.0-flash",
			Provider: "google",
		}
	}
	orch, err := batch.New(env.store, env.writer, env.renderer, env.backend, logging.NewNop(), opts)
	if err != nil {
		t.Fatalf("batch.New: %v", err)
	}
	return orch
}

func readRecord(t *testing.T, writer *output.Writer, document string, page int) output.Record {
	t.Helper()

	data, err := os.ReadFile(writer.JSONPath(document, page))
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	var record output.Record
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	return record
}

func TestRunTranscribesAllPages(t *testing.T) {
	env := newBatchEnv(t, 3, nil)
	orch := env.orchestrator(t, batch.Options{Resume: true, Workers: 2})

	summary, err := orch.Run(context.Background(), "/archive/codex-119.pdf", batch.FullRange)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Succeeded != 3 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary: %#v", summary)
	}
	if summary.Document != "codex-119" {
		t.Fatalf("unexpected document %q", summary.Document)
	}

	for page := 1; page <= 3; page++ {
		record := readRecord(t, env.writer, "codex-119", page)
		if record.Status != output.StatusSuccess {
			t.Fatalf("page %d: unexpected status %q", page, record.Status)
		}
		if record.Transcription == "" {
			t.Fatalf("page %d: empty transcription", page)
		}
		text, err := os.ReadFile(env.writer.TextPath("codex-119", page))
		if err != nil {
			t.Fatalf("page %d: read text: %v", page, err)
		}
		if !strings.Contains(string(text), fmt.Sprintf("%% Page: %d", page)) {
			t.Fatalf("page %d: header missing from text artifact:\n%s", page, text)
		}

		done, err := env.store.IsDone(context.Background(), "codex-119", page)
		if err != nil {
			t.Fatalf("IsDone: %v", err)
		}
		if !done {
			t.Fatalf("page %d not recorded as done", page)
		}
	}
}

func TestRunRecordsFailureAndContinues(t *testing.T) {
	pageErr := services.Wrap(services.ErrTransient, "gemini", "submit", "503", nil)
	env := newBatchEnv(t, 3, map[int]error{2: pageErr})
	orch := env.orchestrator(t, batch.Options{Resume: true, Workers: 1})

	summary, err := orch.Run(context.Background(), "/archive/codex-119.pdf", batch.FullRange)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary: %#v", summary)
	}

	record := readRecord(t, env.writer, "codex-119", 2)
	if record.Status != output.StatusFailure {
		t.Fatalf("unexpected status %q", record.Status)
	}
	if record.Error == "" {
		t.Fatal("expected error message in failure record")
	}
	text, err := os.ReadFile(env.writer.TextPath("codex-119", 2))
	if err != nil {
		t.Fatalf("read text: %v", err)
	}
	if !strings.Contains(string(text), "% [ERROR:") {
		t.Fatalf("expected error annotation in text artifact:\n%s", text)
	}

	entry, err := env.store.Get(context.Background(), "codex-119", 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry == nil || entry.Status != ledger.StatusFailure {
		t.Fatalf("unexpected ledger entry: %#v", entry)
	}
}

func TestRunResumeResubmitsOnlyFailedPage(t *testing.T) {
	pageErr := services.Wrap(services.ErrPermanent, "gemini", "submit", "400", nil)
	env := newBatchEnv(t, 3, map[int]error{2: pageErr})
	orch := env.orchestrator(t, batch.Options{Resume: true, Workers: 1})

	if _, err := orch.Run(context.Background(), "/archive/codex-119.pdf", batch.FullRange); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	env.backend.failures = nil
	env.backend.submitted = nil
	summary, err := orch.Run(context.Background(), "/archive/codex-119.pdf", batch.FullRange)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.Succeeded != 1 || summary.Failed != 0 || summary.Skipped != 2 {
		t.Fatalf("unexpected summary: %#v", summary)
	}
	if pages := env.backend.submittedPages(); len(pages) != 1 || pages[0] != 2 {
		t.Fatalf("expected only page 2 to be resubmitted, got %v", pages)
	}

	entry, err := env.store.Get(context.Background(), "codex-119", 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Status != ledger.StatusSuccess {
		t.Fatalf("expected ledger promotion, got %#v", entry)
	}
}

func TestRunSkipFailedLeavesFailuresAlone(t *testing.T) {
	pageErr := services.Wrap(services.ErrPermanent, "gemini", "submit", "400", nil)
	env := newBatchEnv(t, 3, map[int]error{2: pageErr})
	orch := env.orchestrator(t, batch.Options{Resume: true, Workers: 1})

	if _, err := orch.Run(context.Background(), "/archive/codex-119.pdf", batch.FullRange); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	env.backend.submitted = nil
	orch = env.orchestrator(t, batch.Options{Resume: true, SkipFailed: true, Workers: 1})
	summary, err := orch.Run(context.Background(), "/archive/codex-119.pdf", batch.FullRange)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.Skipped != 3 || summary.Succeeded != 0 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %#v", summary)
	}
	if pages := env.backend.submittedPages(); len(pages) != 0 {
		t.Fatalf("expected no submissions, got %v", pages)
	}
}

func TestRunWithoutResumeReprocessesCompletedPages(t *testing.T) {
	env := newBatchEnv(t, 2, nil)
	orch := env.orchestrator(t, batch.Options{Resume: true, Workers: 1})
	if _, err := orch.Run(context.Background(), "/archive/codex-119.pdf", batch.FullRange); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	env.backend.submitted = nil
	orch = env.orchestrator(t, batch.Options{Resume: false, Workers: 1})
	summary, err := orch.Run(context.Background(), "/archive/codex-119.pdf", batch.FullRange)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.Succeeded != 2 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary: %#v", summary)
	}
	if pages := env.backend.submittedPages(); len(pages) != 2 {
		t.Fatalf("expected both pages resubmitted, got %v", pages)
	}
}

func TestRunRejectsRangeBeyondDocument(t *testing.T) {
	env := newBatchEnv(t, 3, nil)
	orch := env.orchestrator(t, batch.Options{Resume: true, Workers: 1})

	pages, err := batch.ParsePageRange("5-9")
	if err != nil {
		t.Fatalf("ParsePageRange: %v", err)
	}
	_, err = orch.Run(context.Background(), "/archive/codex-119.pdf", pages)
	if !services.IsDocumentRead(err) {
		t.Fatalf("expected document read error, got %v", err)
	}
	if pages := env.backend.submittedPages(); len(pages) != 0 {
		t.Fatalf("expected no submissions, got %v", pages)
	}
}

func TestRunInterruptedMidRunResumesUnfinishedPages(t *testing.T) {
	env := newBatchEnv(t, 3, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.backend.onSubmit = func(page int) {
		if page == 2 {
			cancel()
		}
	}
	orch := env.orchestrator(t, batch.Options{Resume: true, Workers: 1})

	_, err := orch.Run(ctx, "/archive/codex-119.pdf", batch.FullRange)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	// Page 1 completed before the interrupt and is in the ledger; the
	// interrupted page left no trace.
	done, err := env.store.IsDone(context.Background(), "codex-119", 1)
	if err != nil {
		t.Fatalf("IsDone: %v", err)
	}
	if !done {
		t.Fatal("page 1 should be recorded as done")
	}
	entry, err := env.store.Get(context.Background(), "codex-119", 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry != nil {
		t.Fatalf("interrupted page must stay untouched, got %#v", entry)
	}

	env.backend.onSubmit = nil
	env.backend.submitted = nil
	summary, err := orch.Run(context.Background(), "/archive/codex-119.pdf", batch.FullRange)
	if err != nil {
		t.Fatalf("resume run failed: %v", err)
	}
	if summary.Succeeded != 2 || summary.Failed != 0 || summary.Skipped != 1 {
		t.Fatalf("unexpected summary: %#v", summary)
	}
	if pages := env.backend.submittedPages(); len(pages) != 2 || pages[0] != 2 || pages[1] != 3 {
		t.Fatalf("expected pages 2 and 3 to be resubmitted, got %v", pages)
	}
}

func TestRunContentPolicyBecomesFailureRecord(t *testing.T) {
	pageErr := services.Wrap(services.ErrContentPolicy, "gemini", "submit", "blocked: SAFETY", nil)
	env := newBatchEnv(t, 1, map[int]error{1: pageErr})
	orch := env.orchestrator(t, batch.Options{Resume: true, Workers: 1})

	summary, err := orch.Run(context.Background(), "/archive/codex-119.pdf", batch.FullRange)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("unexpected summary: %#v", summary)
	}
	if !summary.AllFailed() {
		t.Fatal("expected AllFailed for a fully failed run")
	}

	record := readRecord(t, env.writer, "codex-119", 1)
	if !strings.Contains(record.Error, "content policy") {
		t.Fatalf("expected content policy in error, got %q", record.Error)
	}
}

func TestRunWithRetryWrappedBackend(t *testing.T) {
	transient := services.Wrap(services.ErrTransient, "gemini", "submit", "503", nil)
	env := newBatchEnv(t, 3, map[int]error{2: transient})

	policy := retry.New(3, time.Millisecond, time.Second,
		retry.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	wrapped := retry.Wrap(env.backend, policy)

	orch, err := batch.New(env.store, env.writer, env.renderer, wrapped, logging.NewNop(), batch.Options{
		Model:   backend.ModelSpec{Key: "gemini-flash", Name: "gemini-2.0-flash", Provider: "google"},
		Resume:  true,
		Workers: 1,
	})
	if err != nil {
		t.Fatalf("batch.New: %v", err)
	}

	summary, err := orch.Run(context.Background(), "/archive/codex-119.pdf", batch.FullRange)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %#v", summary)
	}

	// Page 2 exhausted all three attempts before the failure was recorded.
	attempts := 0
	for _, page := range env.backend.submittedPages() {
		if page == 2 {
			attempts++
		}
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts for page 2, got %d", attempts)
	}

	record := readRecord(t, env.writer, "codex-119", 2)
	if !strings.Contains(record.Error, "failed after 3 attempts") {
		t.Fatalf("expected exhaustion message, got %q", record.Error)
	}
}

func TestDocumentID(t *testing.T) {
	cases := map[string]string{
		"/archive/codex-119.pdf": "codex-119",
		"psalter.PDF":            "psalter",
		"/deep/path/ms 42.pdf":   "ms 42",
	}
	for path, want := range cases {
		if got := batch.DocumentID(path); got != want {
			t.Fatalf("DocumentID(%q) = %q, want %q", path, got, want)
		}
	}
}
