package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"archivist/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.LibraryDir = filepath.Join(base, "library")
	cfgVal.Metrics.Bind = ""
	cfgVal.Download.MinFreeSpaceGB = 0
	cfgVal.Workflow.QueuePollInterval = 1
	if err := os.MkdirAll(cfgVal.Paths.LibraryDir, 0o755); err != nil {
		t.Fatalf("mkdir library dir: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSkipCommercials toggles commercial detection on the test config.
func WithSkipCommercials(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.SkipCommercials = enabled
	}
}

// WithDefaultFormat overrides the processing format used when a recording names none.
func WithDefaultFormat(format string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.DefaultFormat = format
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// points the tool configuration at them. If names is empty, every external
// tool is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "comskip", "HandBrakeCLI"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
			switch name {
			case "ffmpeg":
				b.cfg.Tools.FFmpeg = target
			case "ffprobe":
				b.cfg.Tools.FFprobe = target
			case "comskip":
				b.cfg.Tools.Comskip = target
			case "HandBrakeCLI":
				b.cfg.Tools.HandBrake = target
			}
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
