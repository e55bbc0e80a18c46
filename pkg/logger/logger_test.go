package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quillflow.log")

	l, err := NewLogger(Config{Level: "debug", Format: "json", Timezone: "UTC", File: FileConfig{Path: path}})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	l.Info("cycle finished")
	_ = l.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "cycle finished") {
		t.Fatalf("log file missing entry: %q", string(b))
	}
}
