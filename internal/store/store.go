// Package store provides the data access layer for the vulnerability
// intelligence pipeline. All SQL is built with squirrel so parameter
// positions are tracked by construction, and executed through a shared
// pgxpool. The advisory/CVE tables are mutated only through the batch
// upsert methods here; the ingest package owns batching and dedup.
package store

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// isNoRows reports whether err is the pgx no-rows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// psql is the shared statement builder configured for Postgres placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// sqlSnippet truncates a statement for inclusion in error messages. A
// 500-row upsert runs to tens of thousands of characters; the head is enough
// to identify which statement failed.
func sqlSnippet(query string) string {
	const max = 120
	if len(query) <= max {
		return query
	}
	return query[:max] + "..."
}

// orchestratorLockKey identifies the cluster-wide advisory lock that
// serializes sync cycles across processes.
const orchestratorLockKey int64 = 0x4352414e49533253 // "CRANIS2S"

// Store is the central data access object.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying pgxpool for callers that need raw access
// (test helpers, migrations).
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// SyncLock is a held cluster-wide sync lock. Release returns the pinned
// connection to the pool; session advisory locks die with their connection,
// so Release is safe on every exit path.
type SyncLock struct {
	release func()
}

// Release frees the lock. Safe to call once; subsequent calls are no-ops.
func (l *SyncLock) Release() {
	if l.release != nil {
		l.release()
		l.release = nil
	}
}

// TryAcquireSyncLock attempts to take the cluster-wide sync advisory lock
// without blocking. Returns (nil, false, nil) when another sync cycle holds
// it. The lock is a session-level pg_advisory_lock pinned to a dedicated
// pooled connection for its lifetime.
func (s *Store) TryAcquireSyncLock(ctx context.Context) (*SyncLock, bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("store: acquire conn: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", orchestratorLockKey).Scan(&locked); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("store: try advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, false, nil
	}

	release := func() {
		// Unlock best-effort; releasing the connection would also drop the
		// session lock, but an explicit unlock keeps the pooled session clean.
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", orchestratorLockKey)
		conn.Release()
	}
	return &SyncLock{release: release}, true, nil
}
