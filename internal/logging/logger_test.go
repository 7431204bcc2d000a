package logging_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from test")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "archivist.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from test") {
		t.Fatalf("log file missing message: %q", content)
	}
}

func TestConsoleSubjectAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithStage(services.WithItemID(context.Background(), 7), "remuxing")
	logger = logging.NewComponentLogger(logging.WithContext(ctx, logger), "archive")
	logger.Info("remux finished", logging.String("output", "show fixed.ts"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{"archive: ", "[Item #7 (remuxing)]", "remux finished", `output="show fixed.ts"`} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("expected no colour codes in file output: %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no source location at info level: %q", line)
	}
}

func TestJSONFormat(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "warn", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("dropped")
	logging.WarnWithContext(logger, "retrying", "download_retry", logging.Int("attempt", 2))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), content)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "retrying" || entry[logging.FieldEventType] != "download_retry" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry[logging.FieldImpact]; !ok {
		t.Fatalf("expected default impact field: %v", entry)
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestErrorWithContextKeepsCallerHint(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "error.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.ErrorWithContext(logger, "archive failed", "archive_failed",
		logging.String(logging.FieldErrorHint, "check the device"),
		logging.Error(nil),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry[logging.FieldErrorHint] != "check the device" || entry[logging.FieldEventType] != "archive_failed" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["error"] != "<nil>" {
		t.Fatalf("error = %v, want <nil>", entry["error"])
	}
	if _, ok := entry[logging.FieldImpact]; ok {
		t.Fatalf("errors should not get a default impact: %v", entry)
	}
}

func TestNopLoggerIsSilent(t *testing.T) {
	logger := logging.NewComponentLogger(nil, "archive")
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected the nil-based component logger to discard everything")
	}
}
