package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"folio/internal/fileutil"
)

// Status values persisted in transcription records.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Record is the unit of persisted output for one page. Records are immutable
// once written; reprocessing a page replaces the artifacts wholesale.
type Record struct {
	Document       string   `json:"document"`
	Page           int      `json:"page"`
	ModelKey       string   `json:"model_key"`
	Model          string   `json:"model"`
	Provider       string   `json:"provider"`
	ReasoningDepth string   `json:"reasoning_depth,omitempty"`
	Transcription  string   `json:"transcription"`
	Confidence     *float64 `json:"confidence,omitempty"`
	Status         string   `json:"status"`
	Error          string   `json:"error,omitempty"`
	RunID          string   `json:"run_id"`
	Timestamp      string   `json:"timestamp"`
}

// Writer persists transcription records under an output root, one JSON record
// and one annotated text file per page.
type Writer struct {
	root string
}

// NewWriter constructs a writer rooted at outputDir.
func NewWriter(outputDir string) (*Writer, error) {
	outputDir = strings.TrimSpace(outputDir)
	if outputDir == "" {
		return nil, errors.New("output directory required")
	}
	return &Writer{root: outputDir}, nil
}

// JSONPath returns the structured record location for a page.
func (w *Writer) JSONPath(document string, page int) string {
	return filepath.Join(w.root, "json", document, fmt.Sprintf("page-%04d.json", page))
}

// TextPath returns the plain-text artifact location for a page.
func (w *Writer) TextPath(document string, page int) string {
	return filepath.Join(w.root, "text", document, fmt.Sprintf("page-%04d.txt", page))
}

// Write persists both artifact forms for the record. Each file is written to
// a temporary name and renamed into place, so a partial write is never
// visible under the final name; rewriting a page replaces earlier artifacts.
func (w *Writer) Write(record Record) error {
	if strings.TrimSpace(record.Document) == "" {
		return errors.New("record document required")
	}
	if record.Page <= 0 {
		return fmt.Errorf("record page must be positive, got %d", record.Page)
	}
	if record.Timestamp == "" {
		record.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	jsonPath := w.JSONPath(record.Document, record.Page)
	if err := os.MkdirAll(filepath.Dir(jsonPath), 0o755); err != nil {
		return fmt.Errorf("create json dir: %w", err)
	}
	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := fileutil.WriteFileAtomic(jsonPath, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("write json record: %w", err)
	}

	textPath := w.TextPath(record.Document, record.Page)
	if err := os.MkdirAll(filepath.Dir(textPath), 0o755); err != nil {
		return fmt.Errorf("create text dir: %w", err)
	}
	if err := fileutil.WriteFileAtomic(textPath, []byte(renderText(record)), 0o644); err != nil {
		return fmt.Errorf("write text record: %w", err)
	}
	return nil
}

// renderText produces the annotated plain-text artifact: a comment header
// block followed by the transcription body (or the error for failed pages).
func renderText(record Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%% Document: %s\n", record.Document)
	fmt.Fprintf(&b, "%% Page: %d\n", record.Page)
	fmt.Fprintf(&b, "%% Model: %s (%s)\n", record.ModelKey, record.Model)
	fmt.Fprintf(&b, "%% Date: %s\n", record.Timestamp)
	b.WriteString("%" + strings.Repeat("=", 79) + "\n\n")

	if record.Status == StatusSuccess {
		b.WriteString(record.Transcription)
	} else {
		message := record.Error
		if message == "" {
			message = "unknown error"
		}
		fmt.Fprintf(&b, "%% [ERROR: %s]", message)
	}
	b.WriteString("\n")
	return b.String()
}
