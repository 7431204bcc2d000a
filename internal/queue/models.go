package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"archivist/internal/tivo"
)

// Status represents the lifecycle of a queued recording. The finer-grained
// pipeline stage of a running item lives in Item.Stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ShutdownReason is recorded on items the runner cancels while stopping.
const ShutdownReason = "Runner stopped"

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// retryableStatuses are the terminal statuses `queue retry` moves back to pending.
var retryableStatuses = []Status{StatusFailed, StatusCancelled}

// DatabaseHealth describes the queue database state for diagnostics.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Pending   int
	Running   int
	Failed    int
	Cancelled int
	Completed int
}

// NewItem carries the fields supplied when a recording is queued.
type NewItem struct {
	Title       string
	Source      string
	Destination string
	Format      string
	Metadata    tivo.Metadata
}

// Progress is the slice of a pipeline status persisted for a running item.
type Progress struct {
	Stage     string
	Percent   float64
	Message   string
	Bytes     int64
	Estimated int64
	Failures  int
}

// Item represents a queued recording persisted in SQLite.
type Item struct {
	ID               int64
	Title            string
	Source           string
	Destination      string
	Format           string
	Metadata         tivo.Metadata
	Status           Status
	Stage            string
	Progress         float64
	StatusMessage    string
	BytesTransferred int64
	BytesEstimated   int64
	Failures         int
	ErrorMessage     string
	ErrorDetail      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	StartedAt        *time.Time
	FinishedAt       *time.Time
	LastHeartbeat    *time.Time
	CancelRequested  bool
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a user-supplied status name.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// IsTerminal reports whether no further runs will touch the item unless retried.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsRunning reports whether a runner currently owns the item.
func (i Item) IsRunning() bool {
	return i.Status == StatusRunning
}

// DisplayTitle falls back to the source when the recording has no title.
func (i Item) DisplayTitle() string {
	if title := strings.TrimSpace(i.Title); title != "" {
		return title
	}
	return i.Source
}

// Elapsed returns how long the item has been (or was) running.
func (i Item) Elapsed(now time.Time) time.Duration {
	if i.StartedAt == nil {
		return 0
	}
	end := now
	if i.FinishedAt != nil {
		end = *i.FinishedAt
	}
	if end.Before(*i.StartedAt) {
		return 0
	}
	return end.Sub(*i.StartedAt)
}

func (n NewItem) validate() error {
	if strings.TrimSpace(n.Source) == "" {
		return fmt.Errorf("recording source is required")
	}
	if strings.TrimSpace(n.Destination) == "" {
		return fmt.Errorf("recording destination is required")
	}
	return nil
}

func encodeMetadata(m tivo.Metadata) (any, error) {
	if m == (tivo.Metadata{}) {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func decodeMetadata(raw string) (tivo.Metadata, error) {
	var m tivo.Metadata
	if strings.TrimSpace(raw) == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return m, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}
