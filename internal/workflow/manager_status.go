package workflow

import (
	"context"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"archivist/internal/archive"
	"archivist/internal/logging"
	"archivist/internal/queue"
)

// ActiveRun describes one recording the manager is archiving right now.
type ActiveRun struct {
	ID     int64
	Title  string
	Status archive.Status
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool
	LastError  string
	LastItem   *queue.Item
	QueueStats map[queue.Status]int
	Active     []ActiveRun
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastItem != nil {
		item := *m.lastItem
		summary.LastItem = &item
	}
	for id, run := range m.active {
		summary.Active = append(summary.Active, ActiveRun{ID: id, Title: run.rec.Title, Status: run.rec.Status()})
	}
	m.mu.RUnlock()
	sort.Slice(summary.Active, func(i, j int) bool { return summary.Active[i].ID < summary.Active[j].ID })

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	return summary
}

// StatusChanged persists pipeline status for the item being archived. A
// stage change is written immediately; progress within a stage at most once
// per status_persist_interval. Terminal statuses are left to process.
func (m *Manager) StatusChanged(rec *archive.Recording, st archive.Status) {
	if st.Stage.Terminal() {
		return
	}
	m.mu.Lock()
	run := m.active[rec.ID]
	if run == nil {
		m.mu.Unlock()
		return
	}
	if run.throttle == nil || st.Stage != run.lastStage {
		run.throttle = &rate.Sometimes{Interval: m.persistEvery}
		run.lastStage = st.Stage
	}
	throttle := run.throttle
	ctx := run.ctx
	m.mu.Unlock()

	persist := func() {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if err := m.store.UpdateProgress(writeCtx, rec.ID, progressFromStatus(st)); err != nil {
			m.logger.Warn("failed to persist archive status",
				logging.Int64("item_id", rec.ID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "status_persist_failed"),
			)
		}
	}
	if m.persistEvery <= 0 {
		persist()
		return
	}
	throttle.Do(persist)
}

func progressFromStatus(st archive.Status) queue.Progress {
	p := queue.Progress{
		Stage:     st.Stage.String(),
		Percent:   st.Progress,
		Message:   st.String(),
		Bytes:     st.Bytes,
		Estimated: st.Estimated,
		Failures:  st.Failures,
	}
	if p.Percent < 0 {
		p.Percent = 0
	}
	switch st.Stage {
	case archive.StageDone:
		p.Percent = 1
	case archive.StageFailed:
		p.Message = st.Stage.Label()
	}
	return p
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastItem(item *queue.Item) {
	m.mu.Lock()
	if item != nil {
		copy := *item
		m.lastItem = &copy
	} else {
		m.lastItem = nil
	}
	m.mu.Unlock()
}

func elapsedSince(start *time.Time) time.Duration {
	if start == nil {
		return 0
	}
	return time.Since(*start)
}
