// ABOUTME: Derives the flattened CPE index from stored CVE cpe_matches JSON.
// ABOUTME: Full rebuild truncates and repopulates; incremental refresh replaces per-CVE rows.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knqyf263/go-cpe/common"
	"github.com/knqyf263/go-cpe/naming"

	"github.com/mcburnia/CRANIS2-sub001/internal/feed"
	"github.com/mcburnia/CRANIS2-sub001/internal/metrics"
	"github.com/mcburnia/CRANIS2-sub001/internal/store"
)

// indexInsertBatch is the row count per index insert statement.
const indexInsertBatch = 500

// parseErrorLogCap bounds verbose malformed-CPE logging per rebuild.
const parseErrorLogCap = 5

// CPEIndexStore is the store surface the index builder needs.
type CPEIndexStore interface {
	TruncateCPEIndex(ctx context.Context) error
	DeleteCPEIndexForCVEs(ctx context.Context, cveIDs []string) error
	InsertCPEIndexRows(ctx context.Context, rows []store.CPEIndexRow) error
	IterCVECPESources(ctx context.Context, fn func(store.CVECPESource) error) error
	GetCVECPESources(ctx context.Context, cveIDs []string) ([]store.CVECPESource, error)
	CountCPEIndexRows(ctx context.Context) (int64, error)
}

// RebuildCPEIndex drops and repopulates the whole cve_cpe_index table from
// the stored cpe_matches of every CVE. The rebuild is not transactionally
// isolated from readers; a reader can observe a partially filled index until
// it completes. The index is a derived best-effort cache, re-run weekly.
func RebuildCPEIndex(ctx context.Context, s CPEIndexStore) error {
	if err := s.TruncateCPEIndex(ctx); err != nil {
		return err
	}

	var pending []store.CPEIndexRow
	var total int64
	parseErrors := 0

	err := s.IterCVECPESources(ctx, func(src store.CVECPESource) error {
		rows := indexRowsFor(src, &parseErrors)
		pending = append(pending, rows...)
		for len(pending) >= indexInsertBatch {
			if err := s.InsertCPEIndexRows(ctx, pending[:indexInsertBatch]); err != nil {
				return err
			}
			total += indexInsertBatch
			pending = pending[indexInsertBatch:]
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		if err := s.InsertCPEIndexRows(ctx, pending); err != nil {
			return err
		}
		total += int64(len(pending))
	}

	metrics.CPEIndexRows.Set(float64(total))
	slog.Info("cpe index rebuilt", "rows", total, "malformed_cpes", parseErrors)
	return nil
}

// RefreshCPEIndexFor replaces the index rows of the named CVEs only. The
// incremental NVD path uses this so newly delivered CVEs are matchable
// without waiting for the next weekly full rebuild.
func RefreshCPEIndexFor(ctx context.Context, s CPEIndexStore, cveIDs []string) error {
	if len(cveIDs) == 0 {
		return nil
	}
	if err := s.DeleteCPEIndexForCVEs(ctx, cveIDs); err != nil {
		return err
	}
	sources, err := s.GetCVECPESources(ctx, cveIDs)
	if err != nil {
		return err
	}

	parseErrors := 0
	var pending []store.CPEIndexRow
	for _, src := range sources {
		pending = append(pending, indexRowsFor(src, &parseErrors)...)
		for len(pending) >= indexInsertBatch {
			if err := s.InsertCPEIndexRows(ctx, pending[:indexInsertBatch]); err != nil {
				return err
			}
			pending = pending[indexInsertBatch:]
		}
	}
	if len(pending) > 0 {
		if err := s.InsertCPEIndexRows(ctx, pending); err != nil {
			return err
		}
	}
	return nil
}

// indexRowsFor flattens one CVE's stored CPE matches into index rows.
// Malformed match JSON or CPE strings are skipped, the first few logged.
func indexRowsFor(src store.CVECPESource, parseErrors *int) []store.CPEIndexRow {
	var matches []feed.CPEMatch
	if err := json.Unmarshal(src.CPEMatches, &matches); err != nil {
		logParseError(parseErrors, "cpe_matches json", src.CVEID, err)
		return nil
	}

	rows := make([]store.CPEIndexRow, 0, len(matches))
	for _, m := range matches {
		parsed, err := ParseCPE(m.Criteria)
		if err != nil {
			logParseError(parseErrors, "cpe criteria", src.CVEID, err)
			continue
		}
		rows = append(rows, store.CPEIndexRow{
			CVEID:                 src.CVEID,
			Vendor:                parsed.Vendor,
			Product:               parsed.Product,
			TargetSoftware:        parsed.TargetSoftware,
			Version:               parsed.Version,
			VersionStartIncluding: m.VersionStartIncluding,
			VersionStartExcluding: m.VersionStartExcluding,
			VersionEndIncluding:   m.VersionEndIncluding,
			VersionEndExcluding:   m.VersionEndExcluding,
			Severity:              src.Severity,
			CVSSScore:             src.CVSSScore,
		})
	}
	return rows
}

func logParseError(count *int, what, cveID string, err error) {
	*count++
	metrics.ParseFailures.WithLabelValues("cpe").Inc()
	if *count <= parseErrorLogCap {
		slog.Warn("skipping malformed "+what, "cve_id", cveID, "error", err)
	}
}

// ParsedCPE holds the component fields extracted from a CPE 2.3 formatted
// string. Wildcarded components come back empty; product and target software
// are lowercased, vendor case is preserved.
type ParsedCPE struct {
	Vendor         string
	Product        string
	TargetSoftware string
	Version        string
}

// ParseCPE unbinds a CPE 2.3 formatted string (cpe:2.3:a:vendor:product:...)
// into its component fields, undoing backslash escaping.
func ParseCPE(criteria string) (ParsedCPE, error) {
	wfn, err := naming.UnbindFS(criteria)
	if err != nil {
		return ParsedCPE{}, fmt.Errorf("unbind %q: %w", criteria, err)
	}
	return ParsedCPE{
		Vendor:         cpeAttr(wfn.GetString(common.AttributeVendor)),
		Product:        strings.ToLower(cpeAttr(wfn.GetString(common.AttributeProduct))),
		TargetSoftware: strings.ToLower(cpeAttr(wfn.GetString(common.AttributeTargetSw))),
		Version:        cpeAttr(wfn.GetString(common.AttributeVersion)),
	}, nil
}

// cpeAttr normalizes one unbound WFN attribute: logical ANY/NA values map to
// empty, remaining backslash escapes are undone.
func cpeAttr(v string) string {
	switch v {
	case "", "*", "-", "ANY", "NA":
		return ""
	}
	return strings.ReplaceAll(v, `\`, "")
}
