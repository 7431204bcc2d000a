package config

const (
	defaultConfigPath            = "~/.config/archivist/config.toml"
	defaultStateDir              = "~/.local/share/archivist"
	defaultLogDir                = "~/.local/share/archivist/logs"
	defaultLibraryDir            = "~/Videos/Archive"
	defaultDeviceUsername        = "tivo"
	defaultDeviceRequestTimeout  = 60
	defaultFFmpeg                = "ffmpeg"
	defaultFFprobe               = "ffprobe"
	defaultComskip               = "comskip"
	defaultHandBrake             = "HandBrakeCLI"
	defaultDownloadAttempts      = 5
	defaultRetryBaseSeconds      = 30
	defaultRetryMultiplier       = 2.0
	defaultCooldownSeconds       = 5
	defaultMinSizeRatio          = 0.8
	defaultPipeCapacityBytes     = 16 * 1024 * 1024
	defaultChunkSizeBytes        = 8 * 1024
	defaultProgressIntervalBytes = 10 * 1024 * 1024
	defaultMinFreeSpaceGB        = 5
	defaultFormat                = "ts"
	defaultAudioChannels         = "surround"
	defaultQueuePollInterval     = 5
	defaultMaxActiveRuns         = 4
	defaultStatusPersistInterval = 2
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultNtfyRequestTimeout    = 10

	// MediaAccessKeyEnv is consulted when device.media_access_key is empty.
	MediaAccessKeyEnv = "ARCHIVIST_MAK"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			LibraryDir: defaultLibraryDir,
		},
		Device: Device{
			Username:       defaultDeviceUsername,
			RequestTimeout: defaultDeviceRequestTimeout,
			InsecureTLS:    true,
		},
		Tools: Tools{
			FFmpeg:    defaultFFmpeg,
			FFprobe:   defaultFFprobe,
			Comskip:   defaultComskip,
			HandBrake: defaultHandBrake,
		},
		Download: Download{
			Attempts:              defaultDownloadAttempts,
			RetryBaseSeconds:      defaultRetryBaseSeconds,
			RetryMultiplier:       defaultRetryMultiplier,
			CooldownSeconds:       defaultCooldownSeconds,
			MinSizeRatio:          defaultMinSizeRatio,
			PipeCapacityBytes:     defaultPipeCapacityBytes,
			ChunkSizeBytes:        defaultChunkSizeBytes,
			ProgressIntervalBytes: defaultProgressIntervalBytes,
			MinFreeSpaceGB:        defaultMinFreeSpaceGB,
		},
		Processing: Processing{
			DefaultFormat: defaultFormat,
			AudioChannels: defaultAudioChannels,
		},
		Workflow: Workflow{
			QueuePollInterval:     defaultQueuePollInterval,
			MaxActiveRuns:         defaultMaxActiveRuns,
			StatusPersistInterval: defaultStatusPersistInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			Completed:      true,
			Failed:         true,
			Queue:          true,
		},
	}
}
