package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"archivist/internal/logging"
	"archivist/internal/queue"
)

// HeartbeatMonitor keeps last_heartbeat fresh for running items, including
// through long tool phases that publish no status.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{store: store, logger: logger, interval: interval}
}

// StartLoop runs a heartbeat updater for a specific item until context
// cancellation. onCancel fires once when the store reports a cancel request.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, itemID int64, onCancel func()) {
	defer wg.Done()
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String("component", "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requested, err := h.store.UpdateHeartbeat(ctx, itemID)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
				continue
			}
			if requested && onCancel != nil {
				logger.Info("cancel requested from another process",
					logging.String(logging.FieldEventType, "cancel_requested"),
				)
				onCancel()
				onCancel = nil
			}
		}
	}
}
