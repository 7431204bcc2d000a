package tools

import (
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Flags touched by the Quick Sync override.
const (
	flagEncoder        = "-e"
	flagX264Preset     = "--x264-preset"
	flagH264Level      = "--h264-level"
	flagH264Profile    = "--h264-profile"
	flagEncoderPreset  = "--encoder-preset"
	flagEncoderLevel   = "--encoder-level"
	flagEncoderProfile = "--encoder-profile"

	defaultQSVLevel   = "4.0"
	defaultQSVProfile = "main"
)

// TranscodeOptions describes one HandBrakeCLI encode.
type TranscodeOptions struct {
	Input  string
	Output string
	// Preset is the destination format's flag map.
	Preset Flags
	// MaxWidth and MaxHeight cap the output resolution when positive.
	MaxWidth  int
	MaxHeight int
	Stereo    bool
	QSV       bool
}

// HandBrakeArgs renders a HandBrakeCLI command line for opts.
func HandBrakeArgs(opts TranscodeOptions) []string {
	flags := opts.Preset.Clone()
	if opts.QSV {
		flags = ApplyQuickSync(flags)
	}
	if opts.MaxHeight > 0 {
		flags.Set("-Y", strconv.Itoa(opts.MaxHeight))
	}
	if opts.MaxWidth > 0 {
		flags.Set("-X", strconv.Itoa(opts.MaxWidth))
	}
	if opts.Stereo {
		flags.Set("-E", StereoAudioEncoder())
		flags.Set("-a", "1")
		flags.Set("-6", "dpl2")
	}
	args := []string{"-i", opts.Input, "-o", opts.Output}
	return append(args, flags.Args()...)
}

// ApplyQuickSync swaps the software H.264 encoder flags for their Quick Sync
// equivalents, carrying over the requested level and profile.
func ApplyQuickSync(flags Flags) Flags {
	out := flags.Clone()
	level, ok := out.Get(flagH264Level)
	if !ok || level == "" {
		level = defaultQSVLevel
	}
	profile, ok := out.Get(flagH264Profile)
	if !ok || profile == "" {
		profile = defaultQSVProfile
	}
	out.Delete(flagX264Preset)
	out.Delete(flagH264Level)
	out.Delete(flagH264Profile)
	out.Set(flagEncoder, "qsv_h264")
	out.Set(flagEncoderPreset, "balanced")
	out.Set(flagEncoderLevel, level)
	out.Set(flagEncoderProfile, profile)
	return out
}

// StereoAudioEncoder returns the AAC encoder HandBrake offers on this platform.
func StereoAudioEncoder() string {
	if runtime.GOOS == "darwin" {
		return "ca_aac"
	}
	return "av_aac"
}

// ScanArgs asks HandBrakeCLI to scan input without encoding.
func ScanArgs(input string) []string {
	return []string{"--scan", "-i", input}
}

var qsvAvailablePattern = regexp.MustCompile(`(?i)(quick\s*sync|qsv)\b.*\b(yes|is available|supported)\b`)

// ScanProbe reports whether a HandBrake scan advertised Quick Sync support.
type ScanProbe struct {
	mu  sync.Mutex
	qsv bool
}

func (s *ScanProbe) Consume(line string) {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "not ") || strings.Contains(lower, "unsupported") {
		return
	}
	if qsvAvailablePattern.MatchString(line) {
		s.mu.Lock()
		s.qsv = true
		s.mu.Unlock()
	}
}

// AcceptExit accepts any exit code; HandBrake scans exit non-zero for
// inputs without titles and the probe only cares about the capability lines.
func (s *ScanProbe) AcceptExit(int) bool { return true }

// QuickSyncAvailable reports the probe's finding.
func (s *ScanProbe) QuickSyncAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qsv
}

var handBrakeProgressPattern = regexp.MustCompile(`Encoding: task (\d+) of (\d+), ([\d.]+) %(?:.*ETA (\d+)h(\d+)m(\d+)s)?`)

// HandBrakeProgress interprets HandBrakeCLI encode output.
type HandBrakeProgress struct {
	onProgress ProgressFunc
}

// NewHandBrakeProgress reports to fn, which may be nil.
func NewHandBrakeProgress(fn ProgressFunc) *HandBrakeProgress {
	return &HandBrakeProgress{onProgress: fn}
}

func (h *HandBrakeProgress) Consume(line string) {
	m := handBrakeProgressPattern.FindStringSubmatch(line)
	if m == nil || h.onProgress == nil {
		return
	}
	task, _ := strconv.Atoi(m[1])
	tasks, _ := strconv.Atoi(m[2])
	pct, _ := strconv.ParseFloat(m[3], 64)
	if tasks < 1 {
		tasks = 1
	}
	if task < 1 {
		task = 1
	}
	fraction := clampFraction((float64(task-1) + pct/100) / float64(tasks))
	eta := time.Duration(Unknown)
	if m[4] != "" {
		hours, _ := strconv.Atoi(m[4])
		minutes, _ := strconv.Atoi(m[5])
		seconds, _ := strconv.Atoi(m[6])
		eta = time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	}
	h.onProgress(Progress{Fraction: fraction, ETA: eta})
}

func (h *HandBrakeProgress) AcceptExit(code int) bool { return code == 0 }
