package edl

import (
	"fmt"
	"math"
	"strconv"
)

// Segment is a closed time range in seconds. End may be +Inf to mean "until
// the end of the input".
type Segment struct {
	start float64
	end   float64
}

// NewSegment validates and builds a segment. A start after the end is
// rejected rather than swapped.
func NewSegment(start, end float64) (Segment, error) {
	if math.IsNaN(start) || math.IsNaN(end) {
		return Segment{}, fmt.Errorf("segment bounds must be numbers (start=%v end=%v)", start, end)
	}
	if math.IsInf(start, 0) {
		return Segment{}, fmt.Errorf("segment start must be finite (start=%v)", start)
	}
	if start > end {
		return Segment{}, fmt.Errorf("segment start %.2f is after end %.2f", start, end)
	}
	return Segment{start: start, end: end}, nil
}

// OpenSegment builds a segment running from start to the end of the input.
func OpenSegment(start float64) (Segment, error) {
	return NewSegment(start, math.Inf(1))
}

// Start returns the segment start in seconds.
func (s Segment) Start() float64 { return s.start }

// End returns the segment end in seconds, +Inf for open segments.
func (s Segment) End() float64 { return s.end }

// IsOpen reports whether the segment runs to the end of the input.
func (s Segment) IsOpen() bool { return math.IsInf(s.end, 1) }

// Duration returns end minus start, +Inf for open segments.
func (s Segment) Duration() float64 { return s.end - s.start }

// Shift returns the segment moved by offset seconds. Boundaries that would
// become negative are clamped to zero.
func (s Segment) Shift(offset float64) Segment {
	start := math.Max(0, s.start+offset)
	end := s.end
	if !s.IsOpen() {
		end = math.Max(start, s.end+offset)
	}
	return Segment{start: start, end: end}
}

// TrimArgs returns the ffmpeg arguments selecting this segment from its
// input: "-ss <start>" and, for finite segments, "-t <duration>".
func (s Segment) TrimArgs() []string {
	args := []string{"-ss", formatSeconds(s.start)}
	if !s.IsOpen() {
		args = append(args, "-t", formatSeconds(s.Duration()))
	}
	return args
}

func (s Segment) String() string {
	if s.IsOpen() {
		return fmt.Sprintf("(%s, end)", formatSeconds(s.start))
	}
	return fmt.Sprintf("(%s, %s)", formatSeconds(s.start), formatSeconds(s.end))
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
