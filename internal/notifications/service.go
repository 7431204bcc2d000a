package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"archivist/internal/config"
)

const userAgent = "Archivist/0.1.0"

// Event names a notification family.
type Event string

const (
	EventArchiveCompleted Event = "archive_completed"
	EventArchiveFailed    Event = "archive_failed"
	EventQueueStarted     Event = "queue_started"
	EventQueueCompleted   Event = "queue_completed"
	EventTest             Event = "test"
)

// Payload carries event fields. Keys used per event:
//
//	archive_completed: title, destination, duration (time.Duration)
//	archive_failed:    title, summary
//	queue_started:     count (int)
//	queue_completed:   processed, failed (int), duration (time.Duration)
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventArchiveCompleted: cfg.Notifications.Completed,
			EventArchiveFailed:    cfg.Notifications.Failed,
			EventQueueStarted:     cfg.Notifications.Queue,
			EventQueueCompleted:   cfg.Notifications.Queue,
			EventTest:             true,
		},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, p Payload) error {
	if !n.enabled[event] {
		return nil
	}
	data, ok := format(event, p)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, data)
}

func format(event Event, p Payload) (payload, bool) {
	switch event {
	case EventArchiveCompleted:
		message := fmt.Sprintf("Archived: %s", p.text("title"))
		if dest := p.text("destination"); dest != "" {
			message += "\nFile: " + dest
		}
		if d := p.duration("duration"); d > 0 {
			message += "\nTook " + d.String()
		}
		return payload{
			title:   "Archivist - Archived",
			message: message,
			tags:    []string{"archivist", "archive", "completed"},
		}, true
	case EventArchiveFailed:
		message := fmt.Sprintf("Archive failed: %s", p.text("title"))
		if summary := p.text("summary"); summary != "" {
			message += "\n" + summary
		}
		return payload{
			title:    "Archivist - Failed",
			message:  message,
			tags:     []string{"archivist", "archive", "failed"},
			priority: "high",
		}, true
	case EventQueueStarted:
		return payload{
			title:   "Archivist - Queue Started",
			message: fmt.Sprintf("Started processing queue with %d recordings", p.number("count")),
			tags:    []string{"archivist", "queue", "started"},
		}, true
	case EventQueueCompleted:
		processed, failed := p.number("processed"), p.number("failed")
		durationText := p.duration("duration").String()
		if failed == 0 {
			return payload{
				title:   "Archivist - Queue Complete",
				message: fmt.Sprintf("Queue complete: %d recordings archived in %s", processed, durationText),
				tags:    []string{"archivist", "queue", "completed"},
			}, true
		}
		return payload{
			title:   "Archivist - Queue Complete (with errors)",
			message: fmt.Sprintf("Queue complete: %d archived, %d failed in %s", processed, failed, durationText),
			tags:    []string{"archivist", "queue", "completed"},
		}, true
	case EventTest:
		return payload{
			title:    "Archivist - Test",
			message:  "Notification system test",
			tags:     []string{"archivist", "test"},
			priority: "low",
		}, true
	}
	return payload{}, false
}

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p Payload) number(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func (p Payload) duration(key string) time.Duration {
	d, _ := p[key].(time.Duration)
	if d < 0 {
		return 0
	}
	return d.Round(time.Second)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
