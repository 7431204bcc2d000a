package tools

import "time"

// Unknown marks an indeterminate fraction or ETA.
const Unknown = -1

// Progress is a single progress observation from a tool. Fraction is in
// [0,1] or Unknown; ETA is Unknown when it cannot be estimated.
type Progress struct {
	Fraction float64
	ETA      time.Duration
}

// ProgressFunc receives progress observations. It is called from the
// runner's reader goroutine.
type ProgressFunc func(Progress)

func clampFraction(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// projectETA estimates the time left from the elapsed time and fraction done.
func projectETA(elapsed time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || elapsed <= 0 {
		return Unknown
	}
	remaining := time.Duration(float64(elapsed) * (1 - fraction) / fraction)
	return remaining.Round(time.Second)
}
