// End-to-end OSV sync test: httptest feed through the syncer into a real
// Postgres store. Requires Docker; skipped under -short.
package osv_test

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mcburnia/CRANIS2-sub001/internal/feed/osv"
	"github.com/mcburnia/CRANIS2-sub001/internal/store"
	"github.com/mcburnia/CRANIS2-sub001/internal/testutil"
)

const leftPad = `{
	"id": "GHSA-pp7h-53gx-mx7r",
	"aliases": ["CVE-2018-3728"],
	"modified": "2024-03-01T00:00:00Z",
	"summary": "left-pad prototype pollution",
	"database_specific": {"severity": "HIGH"},
	"affected": [{
		"package": {"ecosystem": "npm", "name": "left-pad"},
		"ranges": [{"type": "SEMVER", "events": [{"introduced": "0"}, {"fixed": "1.3.0"}]}],
		"versions": ["1.0.0", "1.1.0", "1.2.0"]
	}]
}`

func TestSyncEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires Docker")
	}
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	w, err := zw.Create("GHSA-pp7h-53gx-mx7r.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(leftPad)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	updated := strings.Replace(leftPad, `"fixed": "1.3.0"`, `"fixed": "1.3.1"`, 1)
	updated = strings.Replace(updated, "2024-03-01", "2024-04-01", 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/all.zip"):
			_, _ = w.Write(archive.Bytes())
		case strings.HasSuffix(r.URL.Path, "/modified_ids.csv"):
			fmt.Fprintln(w, "2024-04-01T00:00:00Z,GHSA-pp7h-53gx-mx7r")
		case strings.HasSuffix(r.URL.Path, "/GHSA-pp7h-53gx-mx7r.json"):
			fmt.Fprint(w, updated)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := osv.New(db, srv.Client(), osv.Config{BaseURL: srv.URL, ScratchRoot: t.TempDir()})

	// First run: no status row exists, so this must be a full archive sync.
	if err := s.Sync(ctx, "npm"); err != nil {
		t.Fatalf("full sync: %v", err)
	}

	row, err := db.GetAdvisory(ctx, "github", "GHSA-pp7h-53gx-mx7r", "npm", "left-pad")
	if err != nil || row == nil {
		t.Fatalf("advisory not stored: %v, %v", row, err)
	}
	if row.FixedVersion == nil || *row.FixedVersion != "1.3.0" {
		t.Errorf("FixedVersion = %v", row.FixedVersion)
	}
	if row.Severity == nil || *row.Severity != "high" {
		t.Errorf("Severity = %v", row.Severity)
	}
	if len(row.AffectedVersions) != 3 {
		t.Errorf("AffectedVersions = %v", row.AffectedVersions)
	}
	if len(row.Aliases) != 1 || row.Aliases[0] != "CVE-2018-3728" {
		t.Errorf("Aliases = %v", row.Aliases)
	}

	st, err := db.GetSyncStatus(ctx, "osv:npm")
	if err != nil || st == nil {
		t.Fatalf("status: %v, %v", st, err)
	}
	if st.Status != store.SyncStatusCompleted || st.LastFullSyncAt == nil {
		t.Fatalf("status after full sync = %+v", st)
	}
	if st.AdvisoryCount != 1 || st.PackageCount != 1 {
		t.Errorf("counts = %d/%d", st.AdvisoryCount, st.PackageCount)
	}

	// Second run: the fresh full-sync timestamp forces the incremental path,
	// which picks the updated advisory off the change feed.
	if err := s.Sync(ctx, "npm"); err != nil {
		t.Fatalf("incremental sync: %v", err)
	}

	row, err = db.GetAdvisory(ctx, "github", "GHSA-pp7h-53gx-mx7r", "npm", "left-pad")
	if err != nil || row == nil {
		t.Fatalf("advisory gone after incremental: %v, %v", row, err)
	}
	if row.FixedVersion == nil || *row.FixedVersion != "1.3.1" {
		t.Errorf("FixedVersion = %v, want the incremental update applied", row.FixedVersion)
	}

	st, _ = db.GetSyncStatus(ctx, "osv:npm")
	if st.LastModifiedMarker == nil || st.LastModifiedMarker.Year() != 2024 || st.LastModifiedMarker.Month() != 4 {
		t.Errorf("watermark = %v, want advanced to the update's timestamp", st.LastModifiedMarker)
	}
}
