// ABOUTME: Tests that content hashes are stable and sensitive to field changes.
// ABOUTME: Guards the change-detection contract relied on by the upsert path.
package ingest

import (
	"testing"

	"github.com/mcburnia/CRANIS2-sub001/internal/feed"
)

func TestAdvisoryContentHashStable(t *testing.T) {
	t.Parallel()

	row := feed.Advisory{
		Source: "osv", AdvisoryID: "A-1", Ecosystem: "npm", PackageName: "left-pad",
		AffectedVersions: []string{"1.0.0"},
		Aliases:          []string{"CVE-2024-0001"},
	}
	if AdvisoryContentHash(row) != AdvisoryContentHash(row) {
		t.Fatal("hash differs across calls for identical input")
	}
}

func TestAdvisoryContentHashDetectsChange(t *testing.T) {
	t.Parallel()

	a := feed.Advisory{Source: "osv", AdvisoryID: "A-1", Ecosystem: "npm", PackageName: "left-pad"}
	b := a
	b.Description = "updated"
	if AdvisoryContentHash(a) == AdvisoryContentHash(b) {
		t.Fatal("hash identical despite payload change")
	}
}

func TestCVEContentHashStable(t *testing.T) {
	t.Parallel()

	row := feed.CVERecord{
		CVEID:      "CVE-2024-0001",
		CPEMatches: []feed.CPEMatch{{Criteria: "cpe:2.3:a:acme:anvil:*:*:*:*:*:*:*:*"}},
	}
	if CVEContentHash(row) != CVEContentHash(row) {
		t.Fatal("hash differs across calls for identical input")
	}
}
