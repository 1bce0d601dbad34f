package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"browserfetch/internal/events"
)

const taskColumns = "id, browser_id, browser_type, version, platform, status, progress, downloaded_bytes, total_bytes, estimated_time_remaining, retry_count, error_message, install_path, created_at, updated_at"

// RecordTask upserts a full task snapshot. Status columns only move forward
// in time: an older snapshot never overwrites a newer status.
func (s *Store) RecordTask(ctx context.Context, rec TaskRecord) error {
	if rec.ID == "" {
		return errors.New("task id is required")
	}
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	_, err := s.exec(ctx, `
        INSERT INTO download_tasks (`+taskColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            browser_id = COALESCE(excluded.browser_id, download_tasks.browser_id),
            browser_type = excluded.browser_type,
            version = excluded.version,
            platform = excluded.platform,
            created_at = excluded.created_at,
            status = CASE WHEN excluded.updated_at >= download_tasks.updated_at THEN excluded.status ELSE download_tasks.status END,
            progress = CASE WHEN excluded.updated_at >= download_tasks.updated_at THEN excluded.progress ELSE download_tasks.progress END,
            retry_count = MAX(excluded.retry_count, download_tasks.retry_count),
            error_message = CASE WHEN excluded.updated_at >= download_tasks.updated_at THEN excluded.error_message ELSE download_tasks.error_message END,
            updated_at = MAX(excluded.updated_at, download_tasks.updated_at)`,
		rec.ID, nullableString(rec.BrowserID), rec.BrowserType, rec.Version, rec.Platform,
		rec.Status, rec.Progress, rec.DownloadedBytes, rec.TotalBytes, rec.ETASeconds,
		rec.RetryCount, nullableString(rec.ErrorMessage), nullableString(rec.InstallPath),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("record task: %w", err)
	}
	return nil
}

// ApplyStatus persists a status event, creating the row when needed.
// Events older than the stored row are ignored.
func (s *Store) ApplyStatus(ctx context.Context, evt events.Status) error {
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	stamp := formatTime(ts)
	var progress any
	if evt.Progress != nil {
		progress = *evt.Progress
	}
	_, err := s.exec(ctx, `
        INSERT INTO download_tasks (id, status, progress, retry_count, error_message, install_path, created_at, updated_at)
        VALUES (?, ?, COALESCE(?, 0.0), ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            status = excluded.status,
            progress = COALESCE(?, download_tasks.progress),
            retry_count = excluded.retry_count,
            error_message = excluded.error_message,
            install_path = COALESCE(excluded.install_path, download_tasks.install_path),
            estimated_time_remaining = NULL,
            updated_at = excluded.updated_at
        WHERE excluded.updated_at >= download_tasks.updated_at`,
		evt.TaskID, evt.Status, progress, evt.RetryCount,
		nullableString(evt.ErrorMessage), nullableString(evt.InstallPath), stamp, stamp,
		progress,
	)
	if err != nil {
		return fmt.Errorf("apply status: %w", err)
	}
	return nil
}

// ApplyProgress persists byte counters for a task that is still downloading.
func (s *Store) ApplyProgress(ctx context.Context, evt events.Progress) error {
	_, err := s.exec(ctx, `
        UPDATE download_tasks
        SET progress = ?, downloaded_bytes = ?, total_bytes = ?, estimated_time_remaining = ?
        WHERE id = ? AND status = 'downloading'`,
		evt.Progress, evt.DownloadedBytes, evt.TotalBytes, evt.EstimatedTimeRemaining, evt.TaskID,
	)
	if err != nil {
		return fmt.Errorf("apply progress: %w", err)
	}
	return nil
}

// LinkBrowser points a task at the browser it installed.
func (s *Store) LinkBrowser(ctx context.Context, taskID, browserID string) error {
	if _, err := s.exec(ctx, `UPDATE download_tasks SET browser_id = ? WHERE id = ?`, browserID, taskID); err != nil {
		return fmt.Errorf("link browser: %w", err)
	}
	return nil
}

// GetTaskRecord fetches one task record.
func (s *Store) GetTaskRecord(ctx context.Context, id string) (TaskRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM download_tasks WHERE id = ?`, id)
	rec, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TaskRecord{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return TaskRecord{}, fmt.Errorf("get task record: %w", err)
	}
	return rec, nil
}

// ListTaskRecords returns task records, newest first. A limit <= 0 returns all.
func (s *Store) ListTaskRecords(ctx context.Context, limit int) ([]TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM download_tasks ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list task records: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteTaskRecord removes a task record. Missing records are not an error.
func (s *Store) DeleteTaskRecord(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM download_tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task record: %w", err)
	}
	return nil
}

// PruneTaskRecords removes finished records last updated before cutoff.
func (s *Store) PruneTaskRecords(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`DELETE FROM download_tasks WHERE status IN ('completed', 'failed') AND updated_at < ?`,
		formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune task records: %w", err)
	}
	return res.RowsAffected()
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (TaskRecord, error) {
	var (
		rec         TaskRecord
		browserID   sql.NullString
		eta         sql.NullInt64
		errMessage  sql.NullString
		installPath sql.NullString
		created     string
		updated     string
	)
	if err := scanner.Scan(
		&rec.ID, &browserID, &rec.BrowserType, &rec.Version, &rec.Platform, &rec.Status,
		&rec.Progress, &rec.DownloadedBytes, &rec.TotalBytes, &eta, &rec.RetryCount,
		&errMessage, &installPath, &created, &updated,
	); err != nil {
		return TaskRecord{}, err
	}
	rec.BrowserID = browserID.String
	rec.ErrorMessage = errMessage.String
	rec.InstallPath = installPath.String
	if eta.Valid {
		v := eta.Int64
		rec.ETASeconds = &v
	}
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return rec, nil
}
