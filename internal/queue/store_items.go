package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Add queues a recording in the pending state.
func (s *Store) Add(ctx context.Context, n NewItem) (*Item, error) {
	if err := n.validate(); err != nil {
		return nil, err
	}
	meta, err := encodeMetadata(n.Metadata)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(n.Title)
	if title == "" {
		title = strings.TrimSpace(n.Metadata.Title)
	}
	now := timestamp(time.Now())

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO recordings (
            title, source, destination, format, metadata_json,
            status, progress, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		title,
		strings.TrimSpace(n.Source),
		strings.TrimSpace(n.Destination),
		nullableString(strings.TrimSpace(n.Format)),
		meta,
		StatusPending,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert recording: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a queue item by identifier. A missing item yields (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM recordings WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// List returns queue items filtered by status set (or all items when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM recordings`
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, statusArgs(statuses)...)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ClaimNext moves the oldest pending item to running and returns it. It
// returns (nil, nil) when nothing is pending.
func (s *Store) ClaimNext(ctx context.Context) (*Item, error) {
	ctx = ensureContext(ctx)
	var claimed int64
	err := retryOnBusy(ctx, func() error {
		claimed = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var id int64
		row := tx.QueryRowContext(ctx,
			`SELECT id FROM recordings WHERE status = ? ORDER BY created_at, id LIMIT 1`,
			StatusPending,
		)
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		now := timestamp(time.Now())
		res, err := tx.ExecContext(ctx,
			`UPDATE recordings
             SET status = ?, stage = NULL, progress = 0, status_message = NULL,
                 bytes_transferred = 0, bytes_estimated = 0, failures = 0,
                 error_message = NULL, error_detail = NULL,
                 started_at = ?, finished_at = NULL, last_heartbeat = ?, cancel_requested = 0, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusRunning, now, now, now, id, StatusPending,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		claimed = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim next item: %w", err)
	}
	if claimed == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, claimed)
}

// Remove deletes an item that is not currently running.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM recordings WHERE id = ? AND status != ?`, id, StatusRunning)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed items from the queue.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	return s.clearStatuses(ctx, "clear completed", StatusCompleted)
}

// ClearFailed removes failed and cancelled items from the queue.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	return s.clearStatuses(ctx, "clear failed", retryableStatuses...)
}

// Clear removes every item that is not running.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM recordings WHERE status != ?`, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) clearStatuses(ctx context.Context, op string, statuses ...Status) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM recordings WHERE status IN (`+makePlaceholders(len(statuses))+`)`,
		statusArgs(statuses)...,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return res.RowsAffected()
}
