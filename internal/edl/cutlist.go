package edl

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"archivist/internal/logging"
)

var cutLinePattern = regexp.MustCompile(`^([\d.]+)\s+([\d.]+)`)

// CutList is an ordered sequence of non-overlapping segments to remove.
type CutList struct {
	segments []Segment
}

// NewCutList builds a cut list from segments that must already be ordered by
// start time and must not overlap.
func NewCutList(segments ...Segment) (CutList, error) {
	out := make([]Segment, 0, len(segments))
	for i, seg := range segments {
		if i > 0 {
			prev := out[len(out)-1]
			if seg.start < prev.end {
				return CutList{}, fmt.Errorf("cut segment %s overlaps or precedes %s", seg, prev)
			}
		}
		out = append(out, seg)
	}
	return CutList{segments: out}, nil
}

// Segments returns a copy of the cut segments.
func (c CutList) Segments() []Segment {
	out := make([]Segment, len(c.segments))
	copy(out, c.segments)
	return out
}

// Len returns the number of cut segments.
func (c CutList) Len() int { return len(c.segments) }

// Keep returns the complement of the cut list over [0, +Inf). Gaps with no
// positive duration are dropped, and the final kept segment is always open.
func (c CutList) Keep() []Segment {
	keep := make([]Segment, 0, len(c.segments)+1)
	prev := 0.0
	for _, cut := range c.segments {
		if cut.start-prev > 0 {
			keep = append(keep, Segment{start: prev, end: cut.start})
		}
		prev = math.Max(prev, cut.end)
	}
	if !math.IsInf(prev, 1) {
		keep = append(keep, Segment{start: prev, end: math.Inf(1)})
	}
	return keep
}

// Parse reads a comskip cut list. Each usable line starts with two decimal
// numbers, the start and end of a commercial break in seconds; anything after
// them is ignored. Lines that do not match, that are inverted, or that
// overlap the previous break are skipped and logged. offset is added to every
// boundary to compensate for audio/video start skew. Read failures are
// returned.
func Parse(r io.Reader, offset float64, logger *slog.Logger) (CutList, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var segments []Segment
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		seg, err := parseLine(line)
		if err != nil {
			logger.Warn("skipping cut list line",
				logging.Int("line", lineNo),
				logging.String("text", line),
				logging.Error(err),
				logging.String(logging.FieldEventType, "cut_list_line_skipped"),
				logging.String(logging.FieldImpact, "this break stays in the recording"),
			)
			continue
		}
		seg = seg.Shift(offset)
		if n := len(segments); n > 0 && seg.start < segments[n-1].end {
			logger.Warn("skipping overlapping cut list line",
				logging.Int("line", lineNo),
				logging.String("segment", seg.String()),
				logging.String("previous", segments[n-1].String()),
				logging.String(logging.FieldEventType, "cut_list_line_skipped"),
			)
			continue
		}
		segments = append(segments, seg)
	}
	if err := scanner.Err(); err != nil {
		return CutList{}, fmt.Errorf("read cut list: %w", err)
	}
	return CutList{segments: segments}, nil
}

func parseLine(line string) (Segment, error) {
	m := cutLinePattern.FindStringSubmatch(line)
	if m == nil {
		return Segment{}, fmt.Errorf("expected \"<start> <end>\"")
	}
	start, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Segment{}, fmt.Errorf("parse start: %w", err)
	}
	end, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Segment{}, fmt.Errorf("parse end: %w", err)
	}
	return NewSegment(start, end)
}
