package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"archivist/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("detail = %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace(context.Background(), "disk", dir, 1); !result.Passed {
		t.Fatalf("expected pass for one byte, got: %s", result.Detail)
	}
	result := CheckFreeSpace(context.Background(), "disk", dir, 1<<62)
	if result.Passed {
		t.Fatal("expected failure for an impossible threshold")
	}
	if !strings.Contains(result.Detail, "need") {
		t.Fatalf("detail = %q", result.Detail)
	}
}

func TestRunAllSkipsDisabledFreeSpace(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = base
	cfg.Paths.LibraryDir = filepath.Join(base, "missing")
	cfg.Download.MinFreeSpaceGB = 0

	results := RunAll(context.Background(), &cfg)
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Library directory" {
		t.Fatalf("failed = %+v", failed)
	}

	cfg.Download.MinFreeSpaceGB = 1 << 20
	if err := os.MkdirAll(cfg.Paths.LibraryDir, 0o755); err != nil {
		t.Fatal(err)
	}
	results = RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("results = %+v", results)
	}
	failed = Failed(results)
	if len(failed) != 1 || failed[0].Name != "Library free space" {
		t.Fatalf("failed = %+v", failed)
	}
}
