package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDevice()
	c.normalizeTools()
	c.normalizeDownload()
	c.normalizeProcessing()
	c.normalizeLogging()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(strings.TrimSpace(c.Paths.LibraryDir)); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDevice() {
	c.Device.MediaAccessKey = strings.TrimSpace(c.Device.MediaAccessKey)
	if c.Device.MediaAccessKey == "" {
		c.Device.MediaAccessKey = strings.TrimSpace(os.Getenv(MediaAccessKeyEnv))
	}
	c.Device.Username = strings.TrimSpace(c.Device.Username)
	if c.Device.Username == "" {
		c.Device.Username = defaultDeviceUsername
	}
}

func (c *Config) normalizeTools() {
	fill := func(value *string, fallback string) {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			*value = fallback
			return
		}
		if strings.HasPrefix(*value, "~") {
			if expanded, err := expandPath(*value); err == nil {
				*value = expanded
			}
		}
	}
	fill(&c.Tools.FFmpeg, defaultFFmpeg)
	fill(&c.Tools.FFprobe, defaultFFprobe)
	fill(&c.Tools.Comskip, defaultComskip)
	fill(&c.Tools.HandBrake, defaultHandBrake)
}

func (c *Config) normalizeDownload() {
	if c.Download.RetryMultiplier == 0 {
		c.Download.RetryMultiplier = defaultRetryMultiplier
	}
	if c.Download.PipeCapacityBytes == 0 {
		c.Download.PipeCapacityBytes = defaultPipeCapacityBytes
	}
	if c.Download.ChunkSizeBytes == 0 {
		c.Download.ChunkSizeBytes = defaultChunkSizeBytes
	}
	if c.Download.ProgressIntervalBytes == 0 {
		c.Download.ProgressIntervalBytes = defaultProgressIntervalBytes
	}
}

func (c *Config) normalizeProcessing() {
	c.Processing.DefaultFormat = strings.ToLower(strings.TrimSpace(c.Processing.DefaultFormat))
	if c.Processing.DefaultFormat == "" {
		c.Processing.DefaultFormat = defaultFormat
	}
	c.Processing.AudioChannels = strings.ToLower(strings.TrimSpace(c.Processing.AudioChannels))
	if c.Processing.AudioChannels == "" {
		c.Processing.AudioChannels = defaultAudioChannels
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
