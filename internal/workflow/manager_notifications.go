package workflow

import (
	"context"
	"errors"
	"time"

	"archivist/internal/logging"
	"archivist/internal/notifications"
	"archivist/internal/queue"
)

func (m *Manager) notifyFinished(ctx context.Context, item *queue.Item, status queue.Status, summary string) {
	if m.notifier == nil {
		return
	}
	var (
		event   notifications.Event
		payload notifications.Payload
	)
	switch status {
	case queue.StatusCompleted:
		event = notifications.EventArchiveCompleted
		payload = notifications.Payload{
			"title":       item.DisplayTitle(),
			"destination": item.Destination,
			"duration":    elapsedSince(item.StartedAt),
		}
	case queue.StatusFailed:
		event = notifications.EventArchiveFailed
		payload = notifications.Payload{"title": item.DisplayTitle(), "summary": summary}
	default:
		return
	}
	m.publish(ctx, event, payload)
}

func (m *Manager) onItemStarted(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	m.mu.Lock()
	if m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = true
	m.queueStart = time.Now()
	m.mu.Unlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(m.logger, "queue stats unavailable for start notification; notification skipped", "queue_stats_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "start notification will not be sent"),
			)
		}
		return
	}
	m.publish(ctx, notifications.EventQueueStarted, notifications.Payload{"count": countActiveItems(stats)})
}

func (m *Manager) checkQueueCompletion(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	m.mu.RLock()
	queueActive := m.queueActive
	m.mu.RUnlock()
	if !queueActive {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(m.logger, "queue stats unavailable for completion notification; notification skipped", "queue_stats_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "completion notification will not be sent"),
			)
		}
		return
	}
	if countActiveItems(stats) > 0 {
		return
	}

	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	start := m.queueStart
	m.queueActive = false
	m.queueStart = time.Time{}
	m.mu.Unlock()

	m.publish(ctx, notifications.EventQueueCompleted, notifications.Payload{
		"processed": stats[queue.StatusCompleted],
		"failed":    stats[queue.StatusFailed],
		"duration":  time.Since(start),
	})
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("shutting down, notification not sent", logging.String("event", string(event)))
			return
		}
		m.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func countActiveItems(stats map[queue.Status]int) int {
	return stats[queue.StatusPending] + stats[queue.StatusRunning]
}
