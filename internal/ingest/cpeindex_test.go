// ABOUTME: Tests for CPE criteria parsing and index rebuild/refresh against a fake store.
// ABOUTME: Covers wildcard versions, escaping, and malformed criteria skipping.
package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mcburnia/CRANIS2-sub001/internal/feed"
	"github.com/mcburnia/CRANIS2-sub001/internal/store"
)

// ── ParseCPE ──────────────────────────────────────────────────────────────────

func TestParseCPEBasic(t *testing.T) {
	t.Parallel()

	got, err := ParseCPE("cpe:2.3:a:apache:http_server:2.4.41:*:*:*:*:*:*:*")
	if err != nil {
		t.Fatalf("ParseCPE: %v", err)
	}
	if got.Vendor != "apache" || got.Product != "http_server" || got.Version != "2.4.41" {
		t.Errorf("ParseCPE = %+v, want apache/http_server/2.4.41", got)
	}
	if got.TargetSoftware != "" {
		t.Errorf("TargetSoftware = %q, want empty for wildcard", got.TargetSoftware)
	}
}

func TestParseCPEWildcardVersionEmpty(t *testing.T) {
	t.Parallel()

	got, err := ParseCPE("cpe:2.3:a:lodash:lodash:*:*:*:*:*:node.js:*:*")
	if err != nil {
		t.Fatalf("ParseCPE: %v", err)
	}
	if got.Version != "" {
		t.Errorf("Version = %q, want empty for wildcard", got.Version)
	}
	if got.TargetSoftware != "node.js" {
		t.Errorf("TargetSoftware = %q, want node.js", got.TargetSoftware)
	}
}

func TestParseCPEUndoesEscaping(t *testing.T) {
	t.Parallel()

	got, err := ParseCPE(`cpe:2.3:a:f5:big\-ip_access_policy_manager:*:*:*:*:*:*:*:*`)
	if err != nil {
		t.Fatalf("ParseCPE: %v", err)
	}
	if got.Product != "big-ip_access_policy_manager" {
		t.Errorf("Product = %q, want escaping undone", got.Product)
	}
}

func TestParseCPEMalformedRejected(t *testing.T) {
	t.Parallel()

	if _, err := ParseCPE("not-a-cpe-string"); err == nil {
		t.Fatal("ParseCPE accepted malformed input")
	}
}

// ── RebuildCPEIndex ───────────────────────────────────────────────────────────

type fakeCPEIndexStore struct {
	sources   []store.CVECPESource
	rows      []store.CPEIndexRow
	truncated int
	deleted   [][]string
}

func (f *fakeCPEIndexStore) TruncateCPEIndex(context.Context) error {
	f.truncated++
	f.rows = nil
	return nil
}

func (f *fakeCPEIndexStore) DeleteCPEIndexForCVEs(_ context.Context, cveIDs []string) error {
	f.deleted = append(f.deleted, cveIDs)
	kept := f.rows[:0]
	drop := make(map[string]struct{}, len(cveIDs))
	for _, id := range cveIDs {
		drop[id] = struct{}{}
	}
	for _, r := range f.rows {
		if _, ok := drop[r.CVEID]; !ok {
			kept = append(kept, r)
		}
	}
	f.rows = kept
	return nil
}

func (f *fakeCPEIndexStore) InsertCPEIndexRows(_ context.Context, rows []store.CPEIndexRow) error {
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeCPEIndexStore) IterCVECPESources(_ context.Context, fn func(store.CVECPESource) error) error {
	for _, src := range f.sources {
		if err := fn(src); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeCPEIndexStore) GetCVECPESources(_ context.Context, cveIDs []string) ([]store.CVECPESource, error) {
	want := make(map[string]struct{}, len(cveIDs))
	for _, id := range cveIDs {
		want[id] = struct{}{}
	}
	var out []store.CVECPESource
	for _, src := range f.sources {
		if _, ok := want[src.CVEID]; ok {
			out = append(out, src)
		}
	}
	return out, nil
}

func (f *fakeCPEIndexStore) CountCPEIndexRows(context.Context) (int64, error) {
	return int64(len(f.rows)), nil
}

func cpeSource(t *testing.T, cveID string, matches ...feed.CPEMatch) store.CVECPESource {
	t.Helper()
	raw, err := json.Marshal(matches)
	if err != nil {
		t.Fatalf("marshal matches: %v", err)
	}
	return store.CVECPESource{CVEID: cveID, CPEMatches: raw}
}

func TestRebuildCPEIndexFlattensMatches(t *testing.T) {
	t.Parallel()

	f := &fakeCPEIndexStore{sources: []store.CVECPESource{
		cpeSource(t, "CVE-2024-0001",
			feed.CPEMatch{Criteria: "cpe:2.3:a:apache:http_server:*:*:*:*:*:*:*:*",
				VersionEndExcluding: "2.4.50"},
			feed.CPEMatch{Criteria: "cpe:2.3:a:apache:tomcat:9.0.1:*:*:*:*:*:*:*"},
		),
		cpeSource(t, "CVE-2024-0002",
			feed.CPEMatch{Criteria: "not parseable"},
			feed.CPEMatch{Criteria: "cpe:2.3:a:acme:anvil:1.0:*:*:*:*:*:*:*"},
		),
	}}

	if err := RebuildCPEIndex(context.Background(), f); err != nil {
		t.Fatalf("RebuildCPEIndex: %v", err)
	}
	if f.truncated != 1 {
		t.Errorf("truncated %d times, want 1", f.truncated)
	}
	if len(f.rows) != 3 {
		t.Fatalf("got %d index rows, want 3 (malformed criteria skipped)", len(f.rows))
	}
	if f.rows[0].VersionEndExcluding != "2.4.50" {
		t.Errorf("boundary not carried: %+v", f.rows[0])
	}
}

func TestRefreshCPEIndexForReplacesOnlyNamedCVEs(t *testing.T) {
	t.Parallel()

	f := &fakeCPEIndexStore{sources: []store.CVECPESource{
		cpeSource(t, "CVE-2024-0001",
			feed.CPEMatch{Criteria: "cpe:2.3:a:apache:http_server:*:*:*:*:*:*:*:*"}),
		cpeSource(t, "CVE-2024-0002",
			feed.CPEMatch{Criteria: "cpe:2.3:a:acme:anvil:1.0:*:*:*:*:*:*:*"}),
	}}
	// Preexisting rows for both CVEs.
	f.rows = []store.CPEIndexRow{
		{CVEID: "CVE-2024-0001", Product: "stale"},
		{CVEID: "CVE-2024-0002", Product: "untouched"},
	}

	if err := RefreshCPEIndexFor(context.Background(), f, []string{"CVE-2024-0001"}); err != nil {
		t.Fatalf("RefreshCPEIndexFor: %v", err)
	}

	var kept, refreshed bool
	for _, r := range f.rows {
		if r.CVEID == "CVE-2024-0002" && r.Product == "untouched" {
			kept = true
		}
		if r.CVEID == "CVE-2024-0001" && r.Product == "http_server" {
			refreshed = true
		}
	}
	if !kept {
		t.Error("rows of unrelated CVEs were disturbed")
	}
	if !refreshed {
		t.Error("named CVE's rows were not rebuilt from current matches")
	}
}

func TestRefreshCPEIndexForNoIDsIsNoOp(t *testing.T) {
	t.Parallel()

	f := &fakeCPEIndexStore{}
	if err := RefreshCPEIndexFor(context.Background(), f, nil); err != nil {
		t.Fatalf("RefreshCPEIndexFor(nil): %v", err)
	}
	if len(f.deleted) != 0 {
		t.Error("delete issued for empty id list")
	}
}
