package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"archivist/internal/archive"
	"archivist/internal/queue"
)

// queueItemView is the JSON shape of a queue item.
type queueItemView struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	Source           string  `json:"source"`
	Destination      string  `json:"destination"`
	Format           string  `json:"format,omitempty"`
	Status           string  `json:"status"`
	Stage            string  `json:"stage,omitempty"`
	Progress         float64 `json:"progress"`
	StatusMessage    string  `json:"status_message,omitempty"`
	BytesTransferred int64   `json:"bytes_transferred,omitempty"`
	BytesEstimated   int64   `json:"bytes_estimated,omitempty"`
	Failures         int     `json:"failures,omitempty"`
	ErrorMessage     string  `json:"error_message,omitempty"`
	ErrorDetail      string  `json:"error_detail,omitempty"`
	CancelRequested  bool    `json:"cancel_requested,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
	StartedAt        string  `json:"started_at,omitempty"`
	FinishedAt       string  `json:"finished_at,omitempty"`
}

func newQueueItemView(item *queue.Item) queueItemView {
	return queueItemView{
		ID:               item.ID,
		Title:            item.DisplayTitle(),
		Source:           item.Source,
		Destination:      item.Destination,
		Format:           item.Format,
		Status:           string(item.Status),
		Stage:            item.Stage,
		Progress:         item.Progress,
		StatusMessage:    item.StatusMessage,
		BytesTransferred: item.BytesTransferred,
		BytesEstimated:   item.BytesEstimated,
		Failures:         item.Failures,
		ErrorMessage:     item.ErrorMessage,
		ErrorDetail:      item.ErrorDetail,
		CancelRequested:  item.CancelRequested,
		CreatedAt:        formatTimestamp(item.CreatedAt),
		UpdatedAt:        formatTimestamp(item.UpdatedAt),
		StartedAt:        formatOptionalTimestamp(item.StartedAt),
		FinishedAt:       formatOptionalTimestamp(item.FinishedAt),
	}
}

func buildQueueStatusRows(stats map[queue.Status]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range queue.AllStatuses() {
		count, ok := stats[status]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{formatStatusLabel(string(status)), strconv.Itoa(count)})
	}
	return rows
}

func buildQueueListRows(items []*queue.Item, now time.Time) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.DisplayTitle(),
			formatStatusLabel(string(item.Status)),
			formatStage(item.Stage),
			formatProgress(item),
			formatElapsed(item.Elapsed(now)),
			formatDisplayTime(item.UpdatedAt),
		})
	}
	return rows
}

func buildQueueShowPairs(item *queue.Item, now time.Time) [][2]string {
	pairs := [][2]string{
		{"ID", strconv.FormatInt(item.ID, 10)},
		{"Title", item.DisplayTitle()},
		{"Source", item.Source},
		{"Destination", item.Destination},
		{"Status", formatStatusLabel(string(item.Status))},
	}
	add := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			pairs = append(pairs, [2]string{label, value})
		}
	}
	add("Format", item.Format)
	add("Stage", formatStage(item.Stage))
	if item.IsRunning() {
		add("Progress", formatProgress(item))
	}
	add("Message", item.StatusMessage)
	if item.BytesTransferred > 0 {
		add("Transferred", formatBytes(item.BytesTransferred, item.BytesEstimated))
	}
	if item.Failures > 0 {
		add("Connection failures", strconv.Itoa(item.Failures))
	}
	if item.CancelRequested {
		add("Cancel requested", yesNo(true))
	}
	add("Error", item.ErrorMessage)
	add("Detail", item.ErrorDetail)
	md := item.Metadata
	add("Series", md.SeriesTitle)
	add("Episode", strings.TrimSpace(md.EpisodeNumber+" "+md.EpisodeTitle))
	add("Channel", strings.TrimSpace(md.Channel+" "+md.CallSign))
	if !md.RecordedAt.IsZero() {
		add("Recorded", formatDisplayTime(md.RecordedAt))
	}
	add("Description", md.Description)
	add("Created", formatDisplayTime(item.CreatedAt))
	add("Updated", formatDisplayTime(item.UpdatedAt))
	if item.StartedAt != nil {
		add("Started", formatDisplayTime(*item.StartedAt))
		add("Elapsed", formatElapsed(item.Elapsed(now)))
	}
	if item.FinishedAt != nil {
		add("Finished", formatDisplayTime(*item.FinishedAt))
	}
	return pairs
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return strings.ToUpper(status[:1]) + status[1:]
}

// formatStage renders a stored pipeline stage name the way the pipeline
// labels it.
func formatStage(name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}
	if stage, ok := archive.ParseStage(name); ok {
		return stage.Label()
	}
	return name
}

func formatProgress(item *queue.Item) string {
	if !item.IsRunning() && item.Status != queue.StatusCompleted {
		return ""
	}
	if item.Progress < 0 {
		return ""
	}
	return fmt.Sprintf("%.0f%%", item.Progress*100)
}

func formatElapsed(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.Round(time.Second).String()
}

func formatBytes(n, estimated int64) string {
	const mib = 1024 * 1024
	if estimated > 0 {
		return fmt.Sprintf("%.1f / %.1f MiB", float64(n)/mib, float64(estimated)/mib)
	}
	return fmt.Sprintf("%.1f MiB", float64(n)/mib)
}

func formatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTimestamp(*t)
}
