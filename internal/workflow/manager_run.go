package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"archivist/internal/archive"
	"archivist/internal/logging"
	"archivist/internal/queue"
	"archivist/internal/services"
)

const cancelRequestedReason = "Cancelled by request"

// Start checks external tools, returns items left running by a previous
// runner to the queue, and begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.runner == nil {
		m.mu.Unlock()
		return errors.New("workflow runner not configured")
	}
	m.running = true
	m.mu.Unlock()

	fail := func(err error) error {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return err
	}
	if err := m.runPreflightChecks(m.logger); err != nil {
		return fail(err)
	}
	reset, err := m.store.ResetStuckProcessing(ctx)
	if err != nil {
		return fail(fmt.Errorf("reset stuck items: %w", err))
	}
	if reset > 0 {
		m.logger.Info("requeued items left running by a previous runner",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "queue_reset_stuck"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.dispatch(runCtx, done)
	m.logger.Info("workflow started",
		logging.Int("max_active_runs", m.cfg.Workflow.MaxActiveRuns),
		logging.Duration("poll_interval", m.pollInterval),
		logging.String(logging.FieldEventType, "workflow_start"),
	)
	return nil
}

// Stop cancels every active run and waits for them to clean up.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	<-done
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stop"))
}

// Done is closed once a started manager has fully stopped.
func (m *Manager) Done() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.done
}

// Cancel stops the run of item id when this manager owns it; otherwise a
// pending item is marked cancelled. It reports whether anything changed.
func (m *Manager) Cancel(ctx context.Context, id int64) (bool, error) {
	if m.cancelActive(id) {
		return true, nil
	}
	return m.store.CancelPending(ctx, id)
}

func (m *Manager) cancelActive(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := m.active[id]
	if run == nil {
		return false
	}
	run.requested = true
	run.cancel()
	return true
}

func (m *Manager) dispatch(ctx context.Context, done chan struct{}) {
	defer close(done)
	var g errgroup.Group
	defer func() { _ = g.Wait() }()

	for {
		if err := m.capacity.Acquire(ctx, 1); err != nil {
			return
		}
		if !m.checkReadiness(ctx) {
			m.capacity.Release(1)
			m.waitForRetry(ctx)
			continue
		}
		item, err := m.store.ClaimNext(ctx)
		if err != nil {
			m.capacity.Release(1)
			if ctx.Err() != nil {
				return
			}
			m.handleNextItemError(ctx, err)
			continue
		}
		if item == nil {
			m.capacity.Release(1)
			m.checkQueueCompletion(ctx)
			m.waitForItemOrShutdown(ctx)
			continue
		}

		m.onItemStarted(ctx)
		run := m.register(ctx, item)
		g.Go(func() error {
			defer m.capacity.Release(1)
			m.process(ctx, run)
			return nil
		})
	}
}

func (m *Manager) register(ctx context.Context, item *queue.Item) *activeRun {
	runCtx, cancel := context.WithCancel(ctx)
	run := &activeRun{
		ctx:  runCtx,
		item: item,
		rec: &archive.Recording{
			ID:          item.ID,
			Title:       item.DisplayTitle(),
			Source:      item.Source,
			Destination: item.Destination,
			Format:      item.Format,
			Metadata:    item.Metadata,
		},
		cancel: cancel,
	}
	m.mu.Lock()
	m.active[item.ID] = run
	m.mu.Unlock()
	return run
}

func (m *Manager) unregister(id int64) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

// process runs one claimed item to a terminal status. ctx is the dispatcher
// context: when it ends the run is cancelled as part of shutdown.
func (m *Manager) process(ctx context.Context, run *activeRun) {
	item := run.item
	logger := logging.WithContext(services.WithItemID(ctx, item.ID), m.logger)
	m.setLastItem(item)

	var wg sync.WaitGroup
	hbCtx, stopHeartbeat := context.WithCancel(run.ctx)
	wg.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &wg, item.ID, func() { m.cancelActive(item.ID) })

	m.mu.RLock()
	runner := m.runner
	m.mu.RUnlock()
	outcome, runErr := runner.Run(run.ctx, run.rec)

	stopHeartbeat()
	wg.Wait()
	run.cancel()
	m.unregister(item.ID)

	m.mu.RLock()
	requested := run.requested
	m.mu.RUnlock()

	final := run.rec.Status()
	status := queue.StatusCompleted
	var summary, detail string
	switch outcome {
	case archive.OutcomeCancelled:
		status = queue.StatusCancelled
		summary = queue.ShutdownReason
		if requested {
			summary = cancelRequestedReason
		}
	case archive.OutcomeFailed:
		status = queue.StatusFailed
		summary = services.Summary(runErr)
		detail = services.Details(runErr)
		m.setLastError(runErr)
	}

	if !final.Stage.Terminal() {
		switch status {
		case queue.StatusCompleted:
			final = archive.PhaseStatus(archive.StageDone)
		case queue.StatusCancelled:
			final = archive.PhaseStatus(archive.StageCancelled)
		default:
			final = archive.FailedStatus(summary, detail)
		}
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := m.store.Finish(persistCtx, item.ID, status, progressFromStatus(final), summary, detail); err != nil {
		logging.ErrorWithContext(logger, "failed to record archive result", "queue_finish_failed",
			logging.Error(err),
			logging.String("status", string(status)),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
	logger.Info("queue item finished",
		logging.String("status", string(status)),
		logging.String("final_stage", final.Stage.String()),
		logging.String(logging.FieldEventType, "queue_item_finished"),
	)

	m.notifyFinished(persistCtx, item, status, summary)
	m.checkQueueCompletion(persistCtx)
}

func (m *Manager) handleNextItemError(ctx context.Context, err error) {
	m.setLastError(err)
	m.logger.Error("failed to fetch next queue item",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	m.waitForRetry(ctx)
}

// waitForRetry pauses after a failure, returning early on shutdown or Wake.
func (m *Manager) waitForRetry(ctx context.Context) {
	timer := time.NewTimer(max(errorRetryInterval, m.pollInterval))
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-timer.C:
	}
}

func (m *Manager) waitForItemOrShutdown(ctx context.Context) {
	timer := time.NewTimer(m.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-timer.C:
	}
}
