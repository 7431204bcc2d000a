package main

import (
	"bytes"
	"strings"
	"testing"

	"archivist/internal/archive"
	"archivist/internal/testsupport"
)

func TestRunOnceReturnsWhenQueueEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"run", "--once"}, env.configPath); err != nil {
		t.Fatalf("run --once: %v", err)
	}
}

func TestRunRefusesWithoutRequiredTools(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Tools.FFmpeg = "definitely-not-ffmpeg"
	writeTestConfig(t, env.configPath, env.cfg)
	if _, _, err := runCLI(t, []string{"run", "--once"}, env.configPath); err == nil {
		t.Fatal("expected preflight failure")
	}
}

func TestDepsCommandReportsTools(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithSkipCommercials(true))
	out, _, err := runCLI(t, []string{"deps"}, env.configPath)
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	requireContains(t, out, "FFmpeg")
	requireContains(t, out, "HandBrakeCLI")
	requireContains(t, out, "Library directory")

	env.cfg.Tools.FFmpeg = "definitely-not-ffmpeg"
	writeTestConfig(t, env.configPath, env.cfg)
	out, _, err = runCLI(t, []string{"deps"}, env.configPath)
	if err == nil {
		t.Fatal("expected error for missing ffmpeg")
	}
	requireContains(t, out, "missing")
}

func TestFetchNeedsTitleOrDestination(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"fetch", "http://tivo/x"}, env.configPath); err == nil {
		t.Fatal("expected error without --title or --dest")
	}
}

func TestRecordingFlagsDefaultDestination(t *testing.T) {
	flags := recordingFlags{title: "Evening News", format: "MP4"}
	item, err := flags.resolve("/lib", "ts")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if item.Destination != "/lib/Evening News.mp4" || item.Format != "mp4" || item.Metadata.Title != "Evening News" {
		t.Fatalf("item = %+v", item)
	}

	flags = recordingFlags{title: "Evening News"}
	item, err = flags.resolve("/lib", "tivo")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if item.Destination != "/lib/Evening News.TiVo" || item.Format != "" {
		t.Fatalf("item = %+v", item)
	}
}

func TestStatusPrinterWritesOneLinePerStage(t *testing.T) {
	var buf bytes.Buffer
	p := newStatusPrinter(&buf)
	rec := &archive.Recording{Title: "Show"}
	p.StatusChanged(rec, archive.StageStatus(archive.StageDownloading, 0.1, archive.Unknown))
	p.StatusChanged(rec, archive.StageStatus(archive.StageDownloading, 0.5, archive.Unknown))
	p.StatusChanged(rec, archive.PhaseStatus(archive.StageRemuxing))
	p.StatusChanged(rec, archive.PhaseStatus(archive.StageDone))
	p.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[0], "Show: ") || !strings.HasPrefix(lines[2], "Show: Done") {
		t.Fatalf("lines = %q", lines)
	}
}
