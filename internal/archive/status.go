package archive

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage is a point in a recording's archive lifecycle.
type Stage int

const (
	StageQueued Stage = iota
	StageConnecting
	StageDownloading
	StageDownloaded
	StageRemuxing
	StageFindingCommercials
	StageRemovingCommercials
	StageTranscoding
	StageDone
	StageFailed
	StageCancelled
)

var stageNames = map[Stage]string{
	StageQueued:              "queued",
	StageConnecting:          "connecting",
	StageDownloading:         "downloading",
	StageDownloaded:          "downloaded",
	StageRemuxing:            "remuxing",
	StageFindingCommercials:  "finding_commercials",
	StageRemovingCommercials: "removing_commercials",
	StageTranscoding:         "transcoding",
	StageDone:                "done",
	StageFailed:              "failed",
	StageCancelled:           "cancelled",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Label renders the stage for people, e.g. "Finding Commercials".
func (s Stage) Label() string {
	// Casers are stateful, so each call gets its own.
	return cases.Title(language.English).String(strings.ReplaceAll(s.String(), "_", " "))
}

// Terminal reports whether no further transitions follow.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed || s == StageCancelled
}

// ParseStage is the inverse of String.
func ParseStage(name string) (Stage, bool) {
	name = strings.TrimSpace(strings.ToLower(name))
	for s, n := range stageNames {
		if n == name {
			return s, true
		}
	}
	return StageQueued, false
}

// Unknown marks an indeterminate progress fraction or ETA.
const Unknown = -1

// Status is the observable state of a run. Fields not meaningful for a stage
// are zero, except Progress and ETA, which are Unknown.
type Status struct {
	Stage    Stage
	Progress float64
	ETA      time.Duration

	// Connecting.
	RetryIn          time.Duration
	Failures         int
	RetriesRemaining int

	// Downloading.
	Bytes        int64
	Estimated    int64
	KiBPerSecond float64

	// Failed.
	Summary string
	Detail  string
}

// StageStatus reports progress within a processing stage.
func StageStatus(stage Stage, progress float64, eta time.Duration) Status {
	return Status{Stage: stage, Progress: progress, ETA: eta}
}

// ConnectingStatus reports a connection attempt. retryIn is zero for the
// first attempt.
func ConnectingStatus(retryIn time.Duration, failures, remaining int) Status {
	return Status{
		Stage:            StageConnecting,
		Progress:         Unknown,
		ETA:              Unknown,
		RetryIn:          retryIn,
		Failures:         failures,
		RetriesRemaining: remaining,
	}
}

// FailedStatus reports a run that ended in err.
func FailedStatus(summary, detail string) Status {
	return Status{Stage: StageFailed, Progress: Unknown, ETA: Unknown, Summary: summary, Detail: detail}
}

// PhaseStatus reports a stage with no progress information.
func PhaseStatus(stage Stage) Status {
	return Status{Stage: stage, Progress: Unknown, ETA: Unknown}
}

func (s Status) String() string {
	label := s.Stage.Label()
	switch s.Stage {
	case StageConnecting:
		if s.Failures == 0 {
			return label
		}
		return fmt.Sprintf("%s (retry in %s, %d failed, %d left)", label, s.RetryIn, s.Failures, s.RetriesRemaining)
	case StageFailed:
		if s.Summary != "" {
			return label + ": " + s.Summary
		}
		return label
	}
	var b strings.Builder
	b.WriteString(label)
	if s.Progress >= 0 {
		fmt.Fprintf(&b, " %.0f%%", s.Progress*100)
	}
	if s.ETA >= 0 {
		fmt.Fprintf(&b, " (%s left)", s.ETA.Round(time.Second))
	}
	return b.String()
}
