// ABOUTME: Multi-row advisory upserts keyed by (source, advisory_id, ecosystem, package_name).
// ABOUTME: Identity columns are never rewritten on conflict; batch tags drive staleness sweeps.
package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/mcburnia/CRANIS2-sub001/internal/feed"
)

// advisoryColumns is the full insert column list for the advisories table.
// The first four are the immutable identity key and are never rewritten on
// conflict.
var advisoryColumns = []string{
	"source", "advisory_id", "ecosystem", "package_name",
	"severity", "cvss_score", "cvss_vector", "title", "description",
	"affected_ranges", "affected_versions", "fixed_version",
	"aliases", "refs", "published", "modified", "withdrawn",
	"sync_batch_id", "content_hash", "updated_at",
}

// advisoryUpsertSuffix overwrites the mutable fields and bumps updated_at on
// key conflict. Identity columns are deliberately absent from the SET list.
const advisoryUpsertSuffix = `ON CONFLICT (source, advisory_id, ecosystem, package_name) DO UPDATE SET
	severity = EXCLUDED.severity,
	cvss_score = EXCLUDED.cvss_score,
	cvss_vector = EXCLUDED.cvss_vector,
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	affected_ranges = EXCLUDED.affected_ranges,
	affected_versions = EXCLUDED.affected_versions,
	fixed_version = EXCLUDED.fixed_version,
	aliases = EXCLUDED.aliases,
	refs = EXCLUDED.refs,
	published = EXCLUDED.published,
	modified = EXCLUDED.modified,
	withdrawn = EXCLUDED.withdrawn,
	sync_batch_id = EXCLUDED.sync_batch_id,
	content_hash = EXCLUDED.content_hash,
	updated_at = now()`

// UpsertAdvisories writes one pre-deduplicated batch of advisory rows in a
// single multi-row statement. Callers must dedupe by row key first: Postgres
// rejects multi-row upserts that touch the same key twice in one statement.
func (s *Store) UpsertAdvisories(ctx context.Context, rows []feed.Advisory, batchID uuid.UUID, contentHash func(feed.Advisory) string) error {
	if len(rows) == 0 {
		return nil
	}

	b := psql.Insert("advisories").Columns(advisoryColumns...)
	for _, row := range rows {
		ranges, err := feed.MarshalRanges(row.Ranges)
		if err != nil {
			return fmt.Errorf("store: marshal ranges for %s: %w", row.AdvisoryID, err)
		}
		refs, err := feed.MarshalReferences(row.References)
		if err != nil {
			return fmt.Errorf("store: marshal references for %s: %w", row.AdvisoryID, err)
		}
		versions := row.AffectedVersions
		if versions == nil {
			versions = []string{}
		}
		aliases := row.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		b = b.Values(
			row.Source, row.AdvisoryID, row.Ecosystem, row.PackageName,
			severityValue(row.Severity), row.CVSSScore, row.CVSSVector,
			row.Title, row.Description,
			ranges, versions, row.FixedVersion,
			aliases, refs, row.Published, row.Modified, row.Withdrawn,
			batchID, contentHash(row), time.Now().UTC(),
		)
	}

	query, args, err := b.Suffix(advisoryUpsertSuffix).ToSql()
	if err != nil {
		return fmt.Errorf("store: build advisory upsert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("store: upsert advisories: %w (sql: %s)", err, sqlSnippet(query))
	}
	return nil
}

// RetagEcosystem re-tags every advisory row for ecosystem onto batchID.
// Incremental syncs call this so untouched known-good rows are not swept by
// the next full sync's staleness cleanup.
func (s *Store) RetagEcosystem(ctx context.Context, ecosystem string, batchID uuid.UUID) (int64, error) {
	query, args, err := psql.Update("advisories").
		Set("sync_batch_id", batchID).
		Where(sq.Eq{"ecosystem": ecosystem}).
		Where(sq.NotEq{"sync_batch_id": batchID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: build retag: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("store: retag ecosystem %s: %w", ecosystem, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteStaleAdvisories removes rows for ecosystem that were not re-tagged
// with batchID during a full sync. The bulk archive is the authoritative full
// set; anything it did not touch no longer exists upstream.
func (s *Store) DeleteStaleAdvisories(ctx context.Context, ecosystem string, batchID uuid.UUID) (int64, error) {
	query, args, err := psql.Delete("advisories").
		Where(sq.Eq{"ecosystem": ecosystem}).
		Where(sq.NotEq{"sync_batch_id": batchID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: build stale delete: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("store: delete stale advisories %s: %w", ecosystem, err)
	}
	return tag.RowsAffected(), nil
}

// CountAdvisories returns (row count, distinct package count) for ecosystem.
func (s *Store) CountAdvisories(ctx context.Context, ecosystem string) (rows, packages int64, err error) {
	query, args, err := psql.
		Select("count(*)", "count(DISTINCT package_name)").
		From("advisories").
		Where(sq.Eq{"ecosystem": ecosystem}).
		ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("store: build advisory count: %w", err)
	}
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&rows, &packages); err != nil {
		return 0, 0, fmt.Errorf("store: count advisories %s: %w", ecosystem, err)
	}
	return rows, packages, nil
}

// GetAdvisory fetches one row by its identity key. Returns (nil, nil) when
// no row exists. Used by tests and the admin read path.
func (s *Store) GetAdvisory(ctx context.Context, source, advisoryID, ecosystem, packageName string) (*AdvisoryRow, error) {
	query, args, err := psql.
		Select("source", "advisory_id", "ecosystem", "package_name",
			"severity", "cvss_score", "cvss_vector", "title", "description",
			"affected_ranges", "affected_versions", "fixed_version",
			"aliases", "refs", "published", "modified", "withdrawn",
			"sync_batch_id", "content_hash", "created_at", "updated_at").
		From("advisories").
		Where(sq.Eq{
			"source":       source,
			"advisory_id":  advisoryID,
			"ecosystem":    ecosystem,
			"package_name": packageName,
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build advisory get: %w", err)
	}

	var row AdvisoryRow
	err = s.pool.QueryRow(ctx, query, args...).Scan(
		&row.Source, &row.AdvisoryID, &row.Ecosystem, &row.PackageName,
		&row.Severity, &row.CVSSScore, &row.CVSSVector, &row.Title, &row.Description,
		&row.AffectedRanges, &row.AffectedVersions, &row.FixedVersion,
		&row.Aliases, &row.Refs, &row.Published, &row.Modified, &row.Withdrawn,
		&row.SyncBatchID, &row.ContentHash, &row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get advisory: %w", err)
	}
	return &row, nil
}

// AdvisoryRow is a stored advisories row as scanned from Postgres.
type AdvisoryRow struct {
	Source           string
	AdvisoryID       string
	Ecosystem        string
	PackageName      string
	Severity         *string
	CVSSScore        *float64
	CVSSVector       *string
	Title            string
	Description      string
	AffectedRanges   []byte
	AffectedVersions []string
	FixedVersion     *string
	Aliases          []string
	Refs             []byte
	Published        *time.Time
	Modified         *time.Time
	Withdrawn        *time.Time
	SyncBatchID      uuid.UUID
	ContentHash      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func severityValue(s *feed.Severity) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}
