// ABOUTME: Per-source sync_status state machine rows: idle/running/completed/error.
// ABOUTME: Stores the incremental watermark and last full sync time that drive sync decisions.
package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Sync status values for the sync_status.status column.
const (
	SyncStatusIdle      = "idle"
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusError     = "error"
)

// SyncStatus is the per-source state machine row that drives the
// full-vs-incremental decision and surfaces sync health to the admin UI.
type SyncStatus struct {
	Source             string
	Status             string
	LastSyncAt         *time.Time
	LastFullSyncAt     *time.Time
	LastModifiedMarker *time.Time
	AdvisoryCount      int64
	PackageCount       int64
	Duration           time.Duration
	ErrorMessage       string
	UpdatedAt          time.Time
}

var syncStatusColumns = []string{
	"source", "status", "last_sync_at", "last_full_sync_at",
	"last_modified_marker", "advisory_count", "package_count",
	"duration_ms", "error_message", "updated_at",
}

// GetSyncStatus returns the status row for source, or (nil, nil) when the
// source has never synced.
func (s *Store) GetSyncStatus(ctx context.Context, source string) (*SyncStatus, error) {
	query, args, err := psql.Select(syncStatusColumns...).
		From("sync_status").
		Where(sq.Eq{"source": source}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build sync status get: %w", err)
	}
	row, err := scanSyncStatus(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get sync status %s: %w", source, err)
	}
	return row, nil
}

// ListSyncStatus returns all status rows ordered by source.
func (s *Store) ListSyncStatus(ctx context.Context) ([]SyncStatus, error) {
	query, args, err := psql.Select(syncStatusColumns...).
		From("sync_status").
		OrderBy("source").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build sync status list: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list sync status: %w", err)
	}
	defer rows.Close()

	var out []SyncStatus
	for rows.Next() {
		st, err := scanSyncStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan sync status: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// MarkSyncRunning transitions source to "running", creating the row on first
// sight of a new source.
func (s *Store) MarkSyncRunning(ctx context.Context, source string) error {
	const q = `INSERT INTO sync_status (source, status, error_message, updated_at)
		VALUES ($1, $2, '', now())
		ON CONFLICT (source) DO UPDATE SET
			status = EXCLUDED.status,
			error_message = '',
			updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, source, SyncStatusRunning); err != nil {
		return fmt.Errorf("store: mark running %s: %w", source, err)
	}
	return nil
}

// SyncResult carries the completion facts recorded onto the status row.
type SyncResult struct {
	FullSync      bool
	Marker        *time.Time // nil keeps the previous marker
	AdvisoryCount int64
	PackageCount  int64
	Duration      time.Duration
}

// MarkSyncCompleted transitions source to "completed" and records counts,
// duration, and the new incremental watermark. last_full_sync_at is bumped
// only for full syncs; a nil marker preserves the stored watermark.
func (s *Store) MarkSyncCompleted(ctx context.Context, source string, res SyncResult) error {
	b := psql.Update("sync_status").
		Set("status", SyncStatusCompleted).
		Set("last_sync_at", time.Now().UTC()).
		Set("advisory_count", res.AdvisoryCount).
		Set("package_count", res.PackageCount).
		Set("duration_ms", res.Duration.Milliseconds()).
		Set("error_message", "").
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"source": source})
	if res.FullSync {
		b = b.Set("last_full_sync_at", time.Now().UTC())
	}
	if res.Marker != nil {
		b = b.Set("last_modified_marker", res.Marker.UTC())
	}
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("store: build mark completed: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("store: mark completed %s: %w", source, err)
	}
	return nil
}

// MarkSyncError transitions source to "error" with the failure message.
func (s *Store) MarkSyncError(ctx context.Context, source, message string) error {
	query, args, err := psql.Update("sync_status").
		Set("status", SyncStatusError).
		Set("error_message", message).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"source": source}).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build mark error: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("store: mark error %s: %w", source, err)
	}
	return nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncStatus(r rowScanner) (*SyncStatus, error) {
	var st SyncStatus
	var durationMS int64
	if err := r.Scan(
		&st.Source, &st.Status, &st.LastSyncAt, &st.LastFullSyncAt,
		&st.LastModifiedMarker, &st.AdvisoryCount, &st.PackageCount,
		&durationMS, &st.ErrorMessage, &st.UpdatedAt,
	); err != nil {
		return nil, err
	}
	st.Duration = time.Duration(durationMS) * time.Millisecond
	return &st, nil
}
