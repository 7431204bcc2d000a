package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"archivist/internal/edl"
)

const tsFlags = "+genpts+discardcorrupt+sortdts"

// RemuxArgs rewrites a transport stream's timestamps without re-encoding.
func RemuxArgs(input, output string) []string {
	return []string{
		"-fflags", tsFlags,
		"-i", input,
		"-codec", "copy",
		"-avoid_negative_ts", "make_zero",
		"-seek2any", "1",
		"-f", "mpegts",
		output,
	}
}

// TrimArgs copies one kept segment of input into output.
func TrimArgs(input string, seg edl.Segment, output string) []string {
	args := []string{"-i", input, "-codec", "copy"}
	args = append(args, seg.TrimArgs()...)
	return append(args, output)
}

// ConcatArgs joins the parts named in partList into one transport stream.
func ConcatArgs(partList, output string) []string {
	return []string{
		"-f", "concat",
		"-fflags", tsFlags,
		"-safe", "0",
		"-i", partList,
		"-codec", "copy",
		"-f", "mpegts",
		output,
	}
}

// WritePartList atomically writes an ffmpeg concat list naming parts in order.
func WritePartList(path string, parts []string) error {
	var b strings.Builder
	for _, p := range parts {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(p, "'", `'\''`))
	}
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create part list: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck // no-op after a successful replace
	if _, err := pending.WriteString(b.String()); err != nil {
		return fmt.Errorf("write part list: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit part list: %w", err)
	}
	return nil
}

var (
	ffmpegDurationPattern = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	ffmpegTimePattern     = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
)

// FFmpegProgress interprets ffmpeg console output. It learns the input
// duration from the banner and reports time= updates as a fraction of it.
type FFmpegProgress struct {
	onProgress ProgressFunc
	now        func() time.Time

	mu       sync.Mutex
	started  time.Time
	duration float64
}

// NewFFmpegProgress reports to fn, which may be nil.
func NewFFmpegProgress(fn ProgressFunc) *FFmpegProgress {
	return &FFmpegProgress{onProgress: fn, now: time.Now}
}

func (p *FFmpegProgress) Consume(line string) {
	p.mu.Lock()
	if p.started.IsZero() {
		p.started = p.now()
	}
	if m := ffmpegDurationPattern.FindStringSubmatch(line); m != nil && p.duration == 0 {
		p.duration = clockSeconds(m[1], m[2], m[3])
		p.mu.Unlock()
		return
	}
	m := ffmpegTimePattern.FindStringSubmatch(line)
	if m == nil || p.duration <= 0 || p.onProgress == nil {
		p.mu.Unlock()
		return
	}
	fraction := clampFraction(clockSeconds(m[1], m[2], m[3]) / p.duration)
	eta := projectETA(p.now().Sub(p.started), fraction)
	p.mu.Unlock()
	p.onProgress(Progress{Fraction: fraction, ETA: eta})
}

func (p *FFmpegProgress) AcceptExit(code int) bool { return code == 0 }

func clockSeconds(h, m, s string) float64 {
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	seconds, _ := strconv.ParseFloat(s, 64)
	return float64(hours)*3600 + float64(minutes)*60 + seconds
}
