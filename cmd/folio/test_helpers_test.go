package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeTestConfig creates a config file whose paths live under the test's
// temp directory.
func writeTestConfig(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	body := `
[paths]
input_dir = "` + filepath.Join(base, "input") + `"
output_dir = "` + filepath.Join(base, "output") + `"
log_dir = "` + filepath.Join(base, "logs") + `"

[gemini]
api_key = "test-gemini-key-123456"

[anthropic]
api_key = "test-anthropic-key-123456"

[transcribe]
request_delay_seconds = 0.0
`
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(base, "input"), 0o755); err != nil {
		t.Fatalf("mkdir input: %v", err)
	}
	return path
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()

	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q:\n%s", needle, haystack)
	}
}
