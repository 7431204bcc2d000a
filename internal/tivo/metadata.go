package tivo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

// Metadata describes a recording in the key/value form media servers read
// from a sidecar file.
type Metadata struct {
	Title         string
	SeriesTitle   string
	EpisodeTitle  string
	EpisodeNumber string
	Description   string
	CallSign      string
	Channel       string
	RecordedAt    time.Time
	Duration      time.Duration
}

// Pairs returns the non-empty fields as ordered key/value pairs.
func (m Metadata) Pairs() [][2]string {
	var out [][2]string
	add := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, [2]string{k, v})
		}
	}
	add("title", m.Title)
	add("seriesTitle", m.SeriesTitle)
	add("episodeTitle", m.EpisodeTitle)
	add("episodeNumber", m.EpisodeNumber)
	add("description", m.Description)
	add("callsign", m.CallSign)
	add("displayMajorNumber", m.Channel)
	if !m.RecordedAt.IsZero() {
		add("time", m.RecordedAt.UTC().Format(time.RFC3339))
	}
	if m.Duration > 0 {
		add("duration", formatISODuration(m.Duration))
	}
	if m.EpisodeTitle != "" || m.EpisodeNumber != "" {
		add("isEpisode", "true")
	}
	return out
}

// WriteMetadata atomically writes m to path as "key : value" lines.
func WriteMetadata(path string, m Metadata) error {
	var b strings.Builder
	for _, kv := range m.Pairs() {
		fmt.Fprintf(&b, "%s : %s\n", kv[0], strings.ReplaceAll(kv[1], "\n", " "))
	}
	if err := renameio.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func formatISODuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("PT%dH%02dM%02dS", h, m, s)
}
