// ABOUTME: Flattened cve_cpe_index rows for vendor/product vulnerability lookups.
// ABOUTME: The table is a derived cache: truncate-and-rebuild or per-CVE delete-and-replace.
package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// CPEIndexRow is one flattened CVE×CPE-match tuple in the cve_cpe_index
// lookup table.
type CPEIndexRow struct {
	CVEID                 string
	Vendor                string
	Product               string
	TargetSoftware        string
	Version               string
	VersionStartIncluding string
	VersionStartExcluding string
	VersionEndIncluding   string
	VersionEndExcluding   string
	Severity              *string
	CVSSScore             *float64
}

var cpeIndexColumns = []string{
	"cve_id", "vendor", "product", "target_software", "version",
	"version_start_including", "version_start_excluding",
	"version_end_including", "version_end_excluding",
	"severity", "cvss_score",
}

// TruncateCPEIndex empties the index before a full rebuild. Readers may
// observe an empty index until repopulation completes; the index is a
// derived best-effort cache.
func (s *Store) TruncateCPEIndex(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE cve_cpe_index"); err != nil {
		return fmt.Errorf("store: truncate cpe index: %w", err)
	}
	return nil
}

// DeleteCPEIndexForCVEs removes the index rows of the named CVEs so the
// incremental path can re-insert their fresh tuples.
func (s *Store) DeleteCPEIndexForCVEs(ctx context.Context, cveIDs []string) error {
	if len(cveIDs) == 0 {
		return nil
	}
	query, args, err := psql.Delete("cve_cpe_index").
		Where(sq.Eq{"cve_id": cveIDs}).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build cpe index delete: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("store: delete cpe index rows: %w", err)
	}
	return nil
}

// InsertCPEIndexRows appends one batch of index rows.
func (s *Store) InsertCPEIndexRows(ctx context.Context, rows []CPEIndexRow) error {
	if len(rows) == 0 {
		return nil
	}
	b := psql.Insert("cve_cpe_index").Columns(cpeIndexColumns...)
	for _, row := range rows {
		b = b.Values(
			row.CVEID, row.Vendor, row.Product, row.TargetSoftware, row.Version,
			row.VersionStartIncluding, row.VersionStartExcluding,
			row.VersionEndIncluding, row.VersionEndExcluding,
			row.Severity, row.CVSSScore,
		)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("store: build cpe index insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("store: insert cpe index rows: %w", err)
	}
	return nil
}

// CountCPEIndexRows returns the total index row count.
func (s *Store) CountCPEIndexRows(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM cve_cpe_index").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count cpe index: %w", err)
	}
	return n, nil
}

// QueryCPEIndex returns index rows for a (vendor, product) pair. This is the
// read shape the downstream matcher uses; range containment against a
// concrete version is evaluated by the caller.
func (s *Store) QueryCPEIndex(ctx context.Context, vendor, product string) ([]CPEIndexRow, error) {
	b := psql.Select(cpeIndexColumns...).
		From("cve_cpe_index").
		Where(sq.Eq{"product": product})
	if vendor != "" {
		b = b.Where(sq.Eq{"vendor": vendor})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build cpe index query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query cpe index: %w", err)
	}
	defer rows.Close()

	var out []CPEIndexRow
	for rows.Next() {
		var row CPEIndexRow
		if err := rows.Scan(
			&row.CVEID, &row.Vendor, &row.Product, &row.TargetSoftware, &row.Version,
			&row.VersionStartIncluding, &row.VersionStartExcluding,
			&row.VersionEndIncluding, &row.VersionEndExcluding,
			&row.Severity, &row.CVSSScore,
		); err != nil {
			return nil, fmt.Errorf("store: scan cpe index row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
