package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"folio/internal/config"
	"folio/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; an existing database with another version is rejected.
const schemaVersion = 1

// Store persists per-page transcription status in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	return OpenPath(cfg.LedgerPath())
}

// OpenPath opens the ledger at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, services.Wrap(services.ErrLedgerCorrupt, "ledger", "open",
				fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.verifyIntegrity(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return services.Wrap(services.ErrLedgerCorrupt, "ledger", "init", "check schema table", err)
	}

	if tableExists == 0 {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return services.Wrap(services.ErrLedgerCorrupt, "ledger", "init", "read schema version", err)
	}
	if version != schemaVersion {
		return services.Wrap(services.ErrLedgerCorrupt, "ledger", "init",
			fmt.Sprintf("database has schema version %d, expected %d (move or delete %s)", version, schemaVersion, s.path), nil)
	}
	return nil
}

// verifyIntegrity runs SQLite's built-in check; anything other than "ok"
// means the ledger cannot be trusted and the run must not proceed.
func (s *Store) verifyIntegrity(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return services.Wrap(services.ErrLedgerCorrupt, "ledger", "integrity", "", err)
	}
	if !strings.EqualFold(strings.TrimSpace(result), "ok") {
		return services.Wrap(services.ErrLedgerCorrupt, "ledger", "integrity", result, nil)
	}
	return nil
}

// IsDone reports whether the page already has a successful transcription.
func (s *Store) IsDone(ctx context.Context, document string, page int) (bool, error) {
	entry, err := s.Get(ctx, document, page)
	if err != nil {
		return false, err
	}
	return entry != nil && entry.Status == StatusSuccess, nil
}

// Get fetches the ledger entry for a page, or nil when none exists.
func (s *Store) Get(ctx context.Context, document string, page int) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT document, page, status, model_key, provider, run_id, error_message, updated_at
         FROM pages WHERE document = ? AND page = ?`,
		document, page,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// MarkDone upserts a success entry for the page. Calling it repeatedly leaves
// exactly one row; the latest write wins.
func (s *Store) MarkDone(ctx context.Context, entry Entry) error {
	entry.Status = StatusSuccess
	return s.upsert(ctx, entry)
}

// MarkFailed upserts a failure entry for the page. A page already recorded as
// success keeps its success status; a newer failed attempt never demotes a
// completed page.
func (s *Store) MarkFailed(ctx context.Context, entry Entry) error {
	entry.Status = StatusFailure
	return s.upsert(ctx, entry)
}

func (s *Store) upsert(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.Document) == "" {
		return errors.New("document is required")
	}
	if entry.Page <= 0 {
		return fmt.Errorf("page must be positive, got %d", entry.Page)
	}
	query := `INSERT INTO pages (document, page, status, model_key, provider, run_id, error_message, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(document, page) DO UPDATE SET
            status = excluded.status,
            model_key = excluded.model_key,
            provider = excluded.provider,
            run_id = excluded.run_id,
            error_message = excluded.error_message,
            updated_at = excluded.updated_at`
	if entry.Status == StatusFailure {
		// A failed attempt never overwrites a success row, even when
		// callers race on the same page.
		query += `
         WHERE pages.status != 'success'`
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, query,
		entry.Document,
		entry.Page,
		entry.Status,
		nullableString(entry.ModelKey),
		nullableString(entry.Provider),
		nullableString(entry.RunID),
		nullableString(entry.ErrorMessage),
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

// ListByDocument returns all entries for a document in page order.
func (s *Store) ListByDocument(ctx context.Context, document string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document, page, status, model_key, provider, run_id, error_message, updated_at
         FROM pages WHERE document = ? ORDER BY page`,
		document,
	)
	if err != nil {
		return nil, fmt.Errorf("list by document: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Summaries returns aggregate counts per document, most recently updated first.
func (s *Store) Summaries(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document,
                SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
                SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
                MAX(updated_at)
         FROM pages GROUP BY document ORDER BY MAX(updated_at) DESC`,
		StatusSuccess, StatusFailure,
	)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var summary Summary
		var updated string
		if err := rows.Scan(&summary.Document, &summary.Succeeded, &summary.Failed, &updated); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			summary.LastUpdated = ts
		}
		if entry, err := s.latestEntry(ctx, summary.Document); err == nil && entry != nil {
			summary.LastModel = entry.ModelKey
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func (s *Store) latestEntry(ctx context.Context, document string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT document, page, status, model_key, provider, run_id, error_message, updated_at
         FROM pages WHERE document = ? ORDER BY updated_at DESC LIMIT 1`,
		document,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var modelKey, provider, runID, errorMessage sql.NullString
	var updated string
	if err := row.Scan(
		&entry.Document,
		&entry.Page,
		&entry.Status,
		&modelKey,
		&provider,
		&runID,
		&errorMessage,
		&updated,
	); err != nil {
		return nil, err
	}
	entry.ModelKey = modelKey.String
	entry.Provider = provider.String
	entry.RunID = runID.String
	entry.ErrorMessage = errorMessage.String
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		entry.UpdatedAt = ts
	}
	return &entry, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
