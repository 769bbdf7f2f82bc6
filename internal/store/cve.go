// ABOUTME: CVE row persistence: multi-row upserts, batch re-tagging, and CPE source streaming.
// ABOUTME: IterCVECPESources streams index-build inputs so full rebuilds stay O(1) memory.
package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/mcburnia/CRANIS2-sub001/internal/feed"
)

var cveColumns = []string{
	"cve_id",
	"severity", "cvss_score", "cvss_vector", "description", "vuln_status",
	"fixed_version", "refs", "cpe_matches", "published", "modified",
	"sync_batch_id", "content_hash", "updated_at",
}

const cveUpsertSuffix = `ON CONFLICT (cve_id) DO UPDATE SET
	severity = EXCLUDED.severity,
	cvss_score = EXCLUDED.cvss_score,
	cvss_vector = EXCLUDED.cvss_vector,
	description = EXCLUDED.description,
	vuln_status = EXCLUDED.vuln_status,
	fixed_version = EXCLUDED.fixed_version,
	refs = EXCLUDED.refs,
	cpe_matches = EXCLUDED.cpe_matches,
	published = EXCLUDED.published,
	modified = EXCLUDED.modified,
	sync_batch_id = EXCLUDED.sync_batch_id,
	content_hash = EXCLUDED.content_hash,
	updated_at = now()`

// UpsertCVEs writes one pre-deduplicated batch of CVE rows in a single
// multi-row statement.
func (s *Store) UpsertCVEs(ctx context.Context, rows []feed.CVERecord, batchID uuid.UUID, contentHash func(feed.CVERecord) string) error {
	if len(rows) == 0 {
		return nil
	}

	b := psql.Insert("cves").Columns(cveColumns...)
	for _, row := range rows {
		refs, err := feed.MarshalReferences(row.References)
		if err != nil {
			return fmt.Errorf("store: marshal references for %s: %w", row.CVEID, err)
		}
		matches, err := feed.MarshalCPEMatches(row.CPEMatches)
		if err != nil {
			return fmt.Errorf("store: marshal cpe matches for %s: %w", row.CVEID, err)
		}
		b = b.Values(
			row.CVEID,
			severityValue(row.Severity), row.CVSSScore, row.CVSSVector,
			row.Description, row.VulnStatus,
			row.FixedVersion, refs, matches, row.Published, row.Modified,
			batchID, contentHash(row), time.Now().UTC(),
		)
	}

	query, args, err := b.Suffix(cveUpsertSuffix).ToSql()
	if err != nil {
		return fmt.Errorf("store: build cve upsert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("store: upsert cves: %w (sql: %s)", err, sqlSnippet(query))
	}
	return nil
}

// RetagCVEs re-tags every stored CVE row onto batchID. Incremental NVD syncs
// call this so untouched rows survive the next full sync's cleanup.
func (s *Store) RetagCVEs(ctx context.Context, batchID uuid.UUID) (int64, error) {
	query, args, err := psql.Update("cves").
		Set("sync_batch_id", batchID).
		Where(sq.NotEq{"sync_batch_id": batchID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: build cve retag: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("store: retag cves: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteStaleCVEs removes rows not tagged with batchID after a full sync.
func (s *Store) DeleteStaleCVEs(ctx context.Context, batchID uuid.UUID) (int64, error) {
	query, args, err := psql.Delete("cves").
		Where(sq.NotEq{"sync_batch_id": batchID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: build stale cve delete: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("store: delete stale cves: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountCVEs returns the total stored CVE count.
func (s *Store) CountCVEs(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM cves").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count cves: %w", err)
	}
	return n, nil
}

// GetCVE fetches one CVE row. Returns (nil, nil) when absent.
func (s *Store) GetCVE(ctx context.Context, cveID string) (*CVERow, error) {
	query, args, err := psql.
		Select("cve_id", "severity", "cvss_score", "cvss_vector",
			"description", "vuln_status", "fixed_version", "refs",
			"cpe_matches", "published", "modified", "sync_batch_id",
			"content_hash", "created_at", "updated_at").
		From("cves").
		Where(sq.Eq{"cve_id": cveID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build cve get: %w", err)
	}

	var row CVERow
	err = s.pool.QueryRow(ctx, query, args...).Scan(
		&row.CVEID, &row.Severity, &row.CVSSScore, &row.CVSSVector,
		&row.Description, &row.VulnStatus, &row.FixedVersion, &row.Refs,
		&row.CPEMatches, &row.Published, &row.Modified, &row.SyncBatchID,
		&row.ContentHash, &row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get cve %s: %w", cveID, err)
	}
	return &row, nil
}

// CVERow is a stored cves row as scanned from Postgres.
type CVERow struct {
	CVEID        string
	Severity     *string
	CVSSScore    *float64
	CVSSVector   *string
	Description  string
	VulnStatus   string
	FixedVersion *string
	Refs         []byte
	CPEMatches   []byte
	Published    *time.Time
	Modified     *time.Time
	SyncBatchID  uuid.UUID
	ContentHash  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CVECPESource is the per-CVE input for CPE index construction: the stored
// raw cpe_matches plus the scalar fields denormalized onto index rows.
type CVECPESource struct {
	CVEID      string
	Severity   *string
	CVSSScore  *float64
	CPEMatches []byte
}

// IterCVECPESources streams (cve_id, severity, cvss_score, cpe_matches) for
// every stored CVE, invoking fn per row. Streaming keeps the full-corpus
// index rebuild at O(1) memory.
func (s *Store) IterCVECPESources(ctx context.Context, fn func(CVECPESource) error) error {
	rows, err := s.pool.Query(ctx,
		"SELECT cve_id, severity, cvss_score, cpe_matches FROM cves WHERE jsonb_array_length(cpe_matches) > 0")
	if err != nil {
		return fmt.Errorf("store: query cpe sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var src CVECPESource
		if err := rows.Scan(&src.CVEID, &src.Severity, &src.CVSSScore, &src.CPEMatches); err != nil {
			return fmt.Errorf("store: scan cpe source: %w", err)
		}
		if err := fn(src); err != nil {
			return err
		}
	}
	return rows.Err()
}

// GetCVECPESources fetches index-build inputs for an explicit CVE list.
// Used by the incremental path to refresh only the touched CVEs.
func (s *Store) GetCVECPESources(ctx context.Context, cveIDs []string) ([]CVECPESource, error) {
	if len(cveIDs) == 0 {
		return nil, nil
	}
	query, args, err := psql.
		Select("cve_id", "severity", "cvss_score", "cpe_matches").
		From("cves").
		Where(sq.Eq{"cve_id": cveIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build cpe source get: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query cpe sources: %w", err)
	}
	defer rows.Close()

	var out []CVECPESource
	for rows.Next() {
		var src CVECPESource
		if err := rows.Scan(&src.CVEID, &src.Severity, &src.CVSSScore, &src.CPEMatches); err != nil {
			return nil, fmt.Errorf("store: scan cpe source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}
