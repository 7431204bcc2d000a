package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateDownload() error {
	d := c.Download
	if d.Attempts < 1 {
		return fmt.Errorf("download.attempts must be at least 1, got %d", d.Attempts)
	}
	if d.RetryBaseSeconds < 0 || d.CooldownSeconds < 0 {
		return errors.New("download.retry_base_seconds and download.cooldown_seconds must not be negative")
	}
	if d.RetryMultiplier < 1 {
		return fmt.Errorf("download.retry_multiplier must be at least 1, got %v", d.RetryMultiplier)
	}
	if d.MinSizeRatio < 0 || d.MinSizeRatio > 1 {
		return fmt.Errorf("download.min_size_ratio must be between 0 and 1, got %v", d.MinSizeRatio)
	}
	if d.ChunkSizeBytes <= 0 || d.PipeCapacityBytes < d.ChunkSizeBytes {
		return fmt.Errorf("download.pipe_capacity_bytes (%d) must hold at least one chunk of %d bytes", d.PipeCapacityBytes, d.ChunkSizeBytes)
	}
	if d.ProgressIntervalBytes <= 0 {
		return errors.New("download.progress_interval_bytes must be positive")
	}
	if d.MinFreeSpaceGB < 0 {
		return fmt.Errorf("download.min_free_space_gb must not be negative, got %d", d.MinFreeSpaceGB)
	}
	return nil
}

func (c *Config) validateProcessing() error {
	switch c.Processing.DefaultFormat {
	case "ts", "tivo", "mp4", "mkv":
	default:
		return fmt.Errorf("processing.default_format: unsupported value %q (want ts, tivo, mp4 or mkv)", c.Processing.DefaultFormat)
	}
	switch c.Processing.AudioChannels {
	case "stereo", "surround":
	default:
		return fmt.Errorf("processing.audio_channels: unsupported value %q (want stereo or surround)", c.Processing.AudioChannels)
	}
	if c.Processing.VideoWidth < 0 || c.Processing.VideoHeight < 0 {
		return errors.New("processing.video_width and processing.video_height must not be negative")
	}
	if c.Processing.ComskipThreads < 0 {
		return errors.New("processing.comskip_threads must not be negative")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval < 0 {
		return errors.New("workflow.queue_poll_interval must not be negative")
	}
	if c.Workflow.MaxActiveRuns < 1 {
		return fmt.Errorf("workflow.max_active_runs must be at least 1, got %d", c.Workflow.MaxActiveRuns)
	}
	if c.Workflow.StatusPersistInterval < 0 {
		return errors.New("workflow.status_persist_interval must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
