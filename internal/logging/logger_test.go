package logging_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"folio/internal/logging"
	"folio/internal/testsupport"
)

func logToFile(t *testing.T, opts logging.Options, emit func(*slog.Logger)) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "out.log")
	opts.OutputPaths = []string{path}
	logger, err := logging.New(opts)
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	emit(logger)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(data)
}

func TestConsoleFormat(t *testing.T) {
	out := logToFile(t, logging.Options{Level: "info", Format: "console"}, func(logger *slog.Logger) {
		logger.Info("transcribed page",
			logging.Args(
				logging.String(logging.FieldDocument, "codex-119"),
				logging.Int(logging.FieldPage, 3),
			)...)
	})

	if !strings.Contains(out, "INF") {
		t.Fatalf("missing level label:\n%s", out)
	}
	if !strings.Contains(out, "transcribed page") {
		t.Fatalf("missing message:\n%s", out)
	}
	if !strings.Contains(out, "document=codex-119") || !strings.Contains(out, "page=3") {
		t.Fatalf("missing attrs:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("file output must not be colored:\n%q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	out := logToFile(t, logging.Options{Level: "warn", Format: "console"}, func(logger *slog.Logger) {
		logger.Info("should be dropped")
		logger.Debug("also dropped")
	})

	if strings.TrimSpace(out) != "" {
		t.Fatalf("expected empty log, got:\n%s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	out := logToFile(t, logging.Options{Level: "info", Format: "json"}, func(logger *slog.Logger) {
		logger.Info("batch complete", logging.Args(logging.Int("succeeded", 3))...)
	})

	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &record); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, out)
	}
	if record["msg"] != "batch complete" {
		t.Fatalf("unexpected msg %v", record["msg"])
	}
	if record["succeeded"] != float64(3) {
		t.Fatalf("unexpected attr %v", record["succeeded"])
	}
}

func TestComponentLogger(t *testing.T) {
	out := logToFile(t, logging.Options{Level: "info", Format: "console"}, func(logger *slog.Logger) {
		logging.NewComponentLogger(logger, "batch").Info("starting batch")
	})

	if !strings.Contains(out, "component=batch") {
		t.Fatalf("missing component attr:\n%s", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := logging.New(logging.Options{Format: "xml", OutputPaths: []string{filepath.Join(t.TempDir(), "x.log")}})
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewFromConfigCreatesLogFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	logger.Info("hello")

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "folio.log"))
	if err != nil {
		t.Fatalf("read folio.log: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Fatalf("log file missing entry:\n%s", data)
	}
}
