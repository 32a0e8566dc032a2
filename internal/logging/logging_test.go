package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Level: "warn", Console: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", zap.String("path", "cache/enum/00000000000000AA.yaml"))
	if err := closeFn(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "WARN") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestNewFileGetsDebugJSON(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "ya.log")
	logger, closeFn, err := New(Options{Level: "error", File: path, MaxSizeMB: 1, Console: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	logger.Debug("Cache saved", zap.Int("written", 3))
	if err := closeFn(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if buf.Len() != 0 {
		t.Errorf("debug line reached the console: %q", buf.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v: %q", err, data)
	}
	if entry["msg"] != "Cache saved" || entry["written"] != float64(3) {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("New() accepted an unknown level")
	}
}
