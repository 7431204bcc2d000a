package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains state and log directory configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	LibraryDir string `toml:"library_dir"`
}

// Device contains credentials and transport settings for the recorder.
type Device struct {
	MediaAccessKey string `toml:"media_access_key"`
	Username       string `toml:"username"`
	RequestTimeout int    `toml:"request_timeout"`
	InsecureTLS    bool   `toml:"insecure_tls"`
}

// Tools names the external executables the pipeline drives.
type Tools struct {
	FFmpeg    string `toml:"ffmpeg"`
	FFprobe   string `toml:"ffprobe"`
	Comskip   string `toml:"comskip"`
	HandBrake string `toml:"handbrake"`
}

// Download contains the transfer policy: retry budget, pacing and the
// in-memory pipe between the network and the decoder. MinFreeSpaceGB pauses
// the runner while the library has less free space; zero disables it.
type Download struct {
	Attempts              int     `toml:"attempts"`
	RetryBaseSeconds      int     `toml:"retry_base_seconds"`
	RetryMultiplier       float64 `toml:"retry_multiplier"`
	CooldownSeconds       int     `toml:"cooldown_seconds"`
	MinSizeRatio          float64 `toml:"min_size_ratio"`
	PipeCapacityBytes     int     `toml:"pipe_capacity_bytes"`
	ChunkSizeBytes        int     `toml:"chunk_size_bytes"`
	ProgressIntervalBytes int64   `toml:"progress_interval_bytes"`
	MinFreeSpaceGB        int     `toml:"min_free_space_gb"`
}

// Processing contains the post-download options applied to every run.
type Processing struct {
	DefaultFormat        string `toml:"default_format"`
	SkipCommercials      bool   `toml:"skip_commercials"`
	HardwareAcceleration bool   `toml:"hardware_acceleration"`
	VideoWidth           int    `toml:"video_width"`
	VideoHeight          int    `toml:"video_height"`
	AudioChannels        string `toml:"audio_channels"`
	ComskipThreads       int    `toml:"comskip_threads"`
	KeepEncrypted        bool   `toml:"keep_encrypted"`
}

// Workflow contains queue runner timing and concurrency.
type Workflow struct {
	QueuePollInterval     int `toml:"queue_poll_interval"`
	MaxActiveRuns         int `toml:"max_active_runs"`
	StatusPersistInterval int `toml:"status_persist_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
	Queue          bool   `toml:"queue"`
}

// Metrics contains the Prometheus endpoint bind address. Empty disables it.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Config encapsulates all configuration values for archivist.
//
// Configuration sections by subsystem:
//   - Paths: state (queue database, lock) and log directories
//   - Device: media access key and HTTP settings for the recorder
//   - Tools: ffmpeg, ffprobe, comskip and HandBrakeCLI executables
//   - Download: retry budget, cooldown, size check and pipe sizing
//   - Processing: commercial removal, transcoding limits, debug retention
//   - Workflow: queue polling and concurrent runs
//   - Logging, Notifications, Metrics: operational outputs
type Config struct {
	Paths         Paths         `toml:"paths"`
	Device        Device        `toml:"device"`
	Tools         Tools         `toml:"tools"`
	Download      Download      `toml:"download"`
	Processing    Processing    `toml:"processing"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = defaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", expanded)
	}
	return expanded, true, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the SQLite queue database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// LockPath returns the single-instance lock file used by the queue runner.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "archivist.lock")
}

// RetryBase returns the first download retry delay.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.Download.RetryBaseSeconds) * time.Second
}

// Cooldown returns the pause after each transfer.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Download.CooldownSeconds) * time.Second
}

// PollInterval returns the queue polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.QueuePollInterval) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the config as TOML.
func (c *Config) Encode() ([]byte, error) {
	out, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}
