package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, title, source, destination, format, metadata_json, status, stage, progress, status_message, bytes_transferred, bytes_estimated, failures, error_message, error_detail, created_at, updated_at, started_at, finished_at, last_heartbeat, cancel_requested"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id               int64
		title            string
		source           string
		destination      string
		format           sql.NullString
		metadata         sql.NullString
		statusStr        string
		stage            sql.NullString
		progress         sql.NullFloat64
		statusMessage    sql.NullString
		bytesTransferred sql.NullInt64
		bytesEstimated   sql.NullInt64
		failures         sql.NullInt64
		errorMessage     sql.NullString
		errorDetail      sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		startedRaw       sql.NullString
		finishedRaw      sql.NullString
		lastHeartbeatRaw sql.NullString
		cancelRequested  sql.NullInt64
	)

	if err := scanner.Scan(
		&id,
		&title,
		&source,
		&destination,
		&format,
		&metadata,
		&statusStr,
		&stage,
		&progress,
		&statusMessage,
		&bytesTransferred,
		&bytesEstimated,
		&failures,
		&errorMessage,
		&errorDetail,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&lastHeartbeatRaw,
		&cancelRequested,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:               id,
		Title:            title,
		Source:           source,
		Destination:      destination,
		Format:           format.String,
		Status:           Status(statusStr),
		Stage:            stage.String,
		Progress:         progress.Float64,
		StatusMessage:    statusMessage.String,
		BytesTransferred: bytesTransferred.Int64,
		BytesEstimated:   bytesEstimated.Int64,
		Failures:         int(failures.Int64),
		ErrorMessage:     errorMessage.String,
		ErrorDetail:      errorDetail.String,
		CancelRequested:  cancelRequested.Int64 != 0,
	}
	meta, err := decodeMetadata(metadata.String)
	if err != nil {
		return nil, err
	}
	item.Metadata = meta

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	item.StartedAt = optionalTime(startedRaw)
	item.FinishedAt = optionalTime(finishedRaw)
	item.LastHeartbeat = optionalTime(lastHeartbeatRaw)
	return item, nil
}

func optionalTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		args = append(args, string(status))
	}
	return args
}
