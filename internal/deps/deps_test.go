package deps

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"archivist/internal/config"
	"archivist/internal/services"
)

func writeStub(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	writeStub(t, present)
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[2].Detail)
	}
}

func TestRequirementsFollowProcessingDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Processing.SkipCommercials = true
	cfg.Processing.DefaultFormat = "ts"
	optional := map[string]bool{}
	for _, r := range Requirements(&cfg) {
		optional[r.Name] = r.Optional
	}
	if optional["FFmpeg"] || optional["Comskip"] || optional["FFprobe"] {
		t.Fatalf("ffmpeg, ffprobe and comskip should be required: %v", optional)
	}
	if !optional["HandBrakeCLI"] {
		t.Fatal("HandBrakeCLI should be optional for ts output")
	}
}

func TestRequireReportsConfigurationError(t *testing.T) {
	_, err := Require("transcoding", "HandBrakeCLI", "clearly-not-present-binary")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	bin := filepath.Join(t.TempDir(), "ffmpeg")
	writeStub(t, bin)
	got, err := Require("remuxing", "FFmpeg", bin)
	if err != nil || got != bin {
		t.Fatalf("Require = %q, %v", got, err)
	}
}

func TestCheckComskipIni(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "comskip")
	writeStub(t, bin)

	status := CheckComskipIni(bin)
	if status.Available {
		t.Fatal("ini reported present before it exists")
	}
	ini := filepath.Join(dir, "comskip.ini")
	if err := os.WriteFile(ini, []byte("detect_method=43\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	status = CheckComskipIni(bin)
	if !status.Available || status.Command != ini {
		t.Fatalf("status = %#v", status)
	}
}

func TestIsExecutable(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "tool")
	writeStub(t, bin)
	info, _ := os.Stat(bin)
	if !IsExecutable(info) {
		t.Fatal("stub not executable")
	}
	dirInfo, _ := os.Stat(dir)
	if IsExecutable(dirInfo) {
		t.Fatal("directory treated as executable")
	}
}
