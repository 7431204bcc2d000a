package archive

import (
	"path/filepath"
	"strings"

	"archivist/internal/tools"
)

// Format describes a destination container and how to produce it.
type Format struct {
	Name      string
	Extension string
	// Decrypt is false for the device's own container, which is saved as
	// served.
	Decrypt         bool
	NeedsTranscode  bool
	IncludeMetadata bool
	// HandBrake is the encoder flag map for transcoded formats.
	HandBrake tools.Flags
}

var formats = []Format{
	{Name: "tivo", Extension: ".TiVo"},
	{Name: "ts", Extension: ".ts", Decrypt: true, IncludeMetadata: true},
	{
		Name: "mp4", Extension: ".mp4", Decrypt: true, NeedsTranscode: true,
		HandBrake: tools.NewFlags(
			"-f", "av_mp4",
			"--optimize", "",
			"-e", "x264",
			"--x264-preset", "veryfast",
			"--h264-profile", "high",
			"--h264-level", "4.1",
			"-q", "20",
			"--cfr", "",
			"-E", "copy:aac,copy:ac3",
			"--audio-fallback", "av_aac",
			"--subtitle", "scan",
		),
	},
	{
		Name: "mkv", Extension: ".mkv", Decrypt: true, NeedsTranscode: true,
		HandBrake: tools.NewFlags(
			"-f", "av_mkv",
			"-e", "x264",
			"--x264-preset", "veryfast",
			"--h264-profile", "high",
			"--h264-level", "4.1",
			"-q", "20",
			"--cfr", "",
			"-E", "copy",
			"--audio-fallback", "av_aac",
			"--all-subtitles", "",
		),
	},
}

// Formats lists the supported destination formats.
func Formats() []Format {
	out := make([]Format, len(formats))
	copy(out, formats)
	return out
}

// FormatByName looks a format up by name, ignoring case.
func FormatByName(name string) (Format, bool) {
	name = strings.TrimSpace(name)
	for _, f := range formats {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Format{}, false
}

// FormatForPath picks the format whose extension matches path, ignoring
// case.
func FormatForPath(path string) (Format, bool) {
	ext := filepath.Ext(path)
	for _, f := range formats {
		if strings.EqualFold(f.Extension, ext) {
			return f, true
		}
	}
	return Format{}, false
}
