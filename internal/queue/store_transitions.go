package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpdateProgress records the latest pipeline status of a running item and
// refreshes its heartbeat.
func (s *Store) UpdateProgress(ctx context.Context, id int64, p Progress) error {
	now := timestamp(time.Now())
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE recordings
         SET stage = ?, progress = ?, status_message = ?, bytes_transferred = ?,
             bytes_estimated = ?, failures = ?, last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		nullableString(p.Stage),
		p.Percent,
		nullableString(p.Message),
		p.Bytes,
		p.Estimated,
		p.Failures,
		now,
		now,
		id,
		StatusRunning,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// Finish moves a running item to a terminal status. Summary and detail are
// stored for failed and cancelled items and cleared otherwise.
func (s *Store) Finish(ctx context.Context, id int64, status Status, p Progress, summary, detail string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish item %d: %q is not a terminal status", id, status)
	}
	if status == StatusCompleted {
		summary, detail = "", ""
	}
	now := timestamp(time.Now())
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE recordings
         SET status = ?, stage = ?, progress = ?, status_message = ?, bytes_transferred = ?,
             bytes_estimated = ?, failures = ?, error_message = ?, error_detail = ?,
             finished_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		status,
		nullableString(p.Stage),
		p.Percent,
		nullableString(p.Message),
		p.Bytes,
		p.Estimated,
		p.Failures,
		nullableString(summary),
		nullableString(detail),
		now,
		now,
		id,
	); err != nil {
		return fmt.Errorf("finish item: %w", err)
	}
	return nil
}

// CancelPending marks a pending item cancelled so no runner claims it.
func (s *Store) CancelPending(ctx context.Context, id int64) (bool, error) {
	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE recordings SET status = ?, finished_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusCancelled, now, now, id, StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("cancel pending item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpdateHeartbeat refreshes the heartbeat of a running item and reports
// whether another process asked for the run to be cancelled.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) (bool, error) {
	now := timestamp(time.Now())
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE recordings SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		StatusRunning,
	); err != nil {
		return false, fmt.Errorf("update heartbeat: %w", err)
	}
	var requested int
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM recordings WHERE id = ?`, id).Scan(&requested)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return requested != 0, nil
}

// RequestCancel flags a running item so the runner that owns it cancels the
// run at its next heartbeat.
func (s *Store) RequestCancel(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE recordings SET cancel_requested = 1, updated_at = ? WHERE id = ? AND status = ?`,
		timestamp(time.Now()), id, StatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ResetStuckProcessing returns every running item to pending. The runner calls
// it at startup, when no other runner can hold the items.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE recordings
         SET status = ?, stage = NULL, progress = 0, status_message = 'Reset from stuck processing',
             last_heartbeat = NULL, started_at = NULL, updated_at = ?
         WHERE status = ?`,
		StatusPending,
		timestamp(time.Now()),
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed and cancelled items back to pending. With no ids
// every such item is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	args := []any{StatusPending, timestamp(time.Now())}
	args = append(args, statusArgs(retryableStatuses)...)
	query := `UPDATE recordings
        SET status = ?, stage = NULL, progress = 0, status_message = 'Retry requested',
            error_message = NULL, error_detail = NULL, failures = 0,
            started_at = NULL, finished_at = NULL, cancel_requested = 0, updated_at = ?
        WHERE status IN (` + makePlaceholders(len(retryableStatuses)) + `)`
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed items: %w", err)
	}
	return res.RowsAffected()
}
