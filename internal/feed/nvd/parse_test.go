package nvd

import (
	"strings"
	"testing"

	"github.com/mcburnia/CRANIS2-sub001/internal/feed"
)

func metric(source, version, vector string, score float64, severity string) nvdCVSSMetric {
	return nvdCVSSMetric{
		Source: source,
		CVSSData: nvdCVSSData{
			Version:      version,
			VectorString: vector,
			BaseScore:    score,
			BaseSeverity: severity,
		},
	}
}

// ── ToRecord ──────────────────────────────────────────────────────────────────

func TestToRecordRejectedDropped(t *testing.T) {
	t.Parallel()

	rec := ToRecord(nvdCVE{ID: "CVE-2024-0001", VulnStatus: "Rejected"})
	if rec != nil {
		t.Fatalf("got %+v, want nil for rejected entry", rec)
	}
}

func TestToRecordMissingIDDropped(t *testing.T) {
	t.Parallel()

	if rec := ToRecord(nvdCVE{VulnStatus: "Analyzed"}); rec != nil {
		t.Fatalf("got %+v, want nil for missing id", rec)
	}
}

func TestToRecordEnglishDescriptionPreferred(t *testing.T) {
	t.Parallel()

	rec := ToRecord(nvdCVE{
		ID: "CVE-2024-0001",
		Descriptions: []nvdDescription{
			{Lang: "es", Value: "descripción"},
			{Lang: "en", Value: "first english"},
			{Lang: "en", Value: "second english"},
		},
	})
	if rec == nil {
		t.Fatal("record dropped")
	}
	if rec.Description != "first english" {
		t.Errorf("Description = %q, want first English entry", rec.Description)
	}
}

func TestToRecordPrefersCVSS31Over30AndV2(t *testing.T) {
	t.Parallel()

	rec := ToRecord(nvdCVE{
		ID: "CVE-2024-0001",
		Metrics: nvdMetrics{
			CVSSV31: []nvdCVSSMetric{metric("nvd@nist.gov", "3.1",
				"CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H", 9.8, "CRITICAL")},
			CVSSV30: []nvdCVSSMetric{metric("nvd@nist.gov", "3.0",
				"CVSS:3.0/AV:N/AC:L/PR:N/UI:N/S:U/C:L/I:L/A:L", 7.3, "HIGH")},
			CVSSV2: []nvdCVSSMetric{metric("nvd@nist.gov", "2.0",
				"AV:N/AC:L/Au:N/C:P/I:P/A:P", 7.5, "")},
		},
	})
	if rec == nil {
		t.Fatal("record dropped")
	}
	if rec.CVSSScore == nil || *rec.CVSSScore != 9.8 {
		t.Errorf("CVSSScore = %v, want 9.8 from the v3.1 metric group", rec.CVSSScore)
	}
	if rec.Severity == nil || *rec.Severity != feed.SeverityCritical {
		t.Errorf("Severity = %v, want critical", rec.Severity)
	}
	if rec.CVSSVector == nil || !strings.HasPrefix(*rec.CVSSVector, "CVSS:3.1/") {
		t.Errorf("CVSSVector = %v, want v3.1 vector", rec.CVSSVector)
	}
}

func TestToRecordV2OnlySeverityFromThresholds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		score float64
		want  feed.Severity
	}{
		{9.3, feed.SeverityCritical},
		{7.5, feed.SeverityHigh},
		{5.0, feed.SeverityMedium},
		{2.1, feed.SeverityLow},
	}
	for _, tc := range cases {
		rec := ToRecord(nvdCVE{
			ID: "CVE-2024-0001",
			Metrics: nvdMetrics{
				CVSSV2: []nvdCVSSMetric{metric("nvd@nist.gov", "2.0",
					"AV:N/AC:L/Au:N/C:P/I:P/A:P", tc.score, "")},
			},
		})
		if rec == nil {
			t.Fatal("record dropped")
		}
		if rec.Severity == nil || *rec.Severity != tc.want {
			t.Errorf("score %.1f: Severity = %v, want %s", tc.score, rec.Severity, tc.want)
		}
	}
}

func TestToRecordCollectsOnlyVulnerableCPEMatches(t *testing.T) {
	t.Parallel()

	rec := ToRecord(nvdCVE{
		ID: "CVE-2024-0001",
		Configurations: []nvdConfig{{
			Nodes: []nvdNode{
				{
					CPEMatch: []nvdCPEMatch{
						{Criteria: "cpe:2.3:a:acme:anvil:*:*:*:*:*:*:*:*", Vulnerable: true,
							VersionEndExcluding: "2.0.0"},
						{Criteria: "cpe:2.3:o:linux:linux_kernel:*:*:*:*:*:*:*:*", Vulnerable: false},
					},
					Children: []nvdNode{{
						CPEMatch: []nvdCPEMatch{
							{Criteria: "cpe:2.3:a:acme:hammer:1.0:*:*:*:*:*:*:*", Vulnerable: true},
						},
					}},
				},
			},
		}},
	})
	if rec == nil {
		t.Fatal("record dropped")
	}
	if len(rec.CPEMatches) != 2 {
		t.Fatalf("got %d matches, want 2 (vulnerable only, children walked)", len(rec.CPEMatches))
	}
	if rec.CPEMatches[0].RangeText != "< 2.0.0" {
		t.Errorf("RangeText = %q, want \"< 2.0.0\"", rec.CPEMatches[0].RangeText)
	}
}

func TestToRecordDeduplicatesCPEMatches(t *testing.T) {
	t.Parallel()

	match := nvdCPEMatch{Criteria: "cpe:2.3:a:acme:anvil:*:*:*:*:*:*:*:*", Vulnerable: true}
	rec := ToRecord(nvdCVE{
		ID: "CVE-2024-0001",
		Configurations: []nvdConfig{
			{Nodes: []nvdNode{{CPEMatch: []nvdCPEMatch{match}}}},
			{Nodes: []nvdNode{{CPEMatch: []nvdCPEMatch{match}}}},
		},
	})
	if rec == nil {
		t.Fatal("record dropped")
	}
	if len(rec.CPEMatches) != 1 {
		t.Errorf("got %d matches, want 1 after dedup", len(rec.CPEMatches))
	}
}

func TestToRecordFixedVersionFromReleaseTag(t *testing.T) {
	t.Parallel()

	rec := ToRecord(nvdCVE{
		ID: "CVE-2024-0001",
		References: []nvdReference{
			{URL: "https://example.com/advisory/123"},
			{URL: "https://github.com/acme/widget/releases/tag/v2.4.1"},
		},
	})
	if rec == nil {
		t.Fatal("record dropped")
	}
	if rec.FixedVersion == nil || *rec.FixedVersion != "2.4.1" {
		t.Errorf("FixedVersion = %v, want 2.4.1 recovered from release tag URL", rec.FixedVersion)
	}
}

func TestRangeText(t *testing.T) {
	t.Parallel()

	got := rangeText(feed.CPEMatch{
		VersionStartIncluding: "2.0.0",
		VersionEndExcluding:   "2.4.1",
	})
	if got != ">= 2.0.0, < 2.4.1" {
		t.Errorf("rangeText = %q", got)
	}
	if rangeText(feed.CPEMatch{}) != "" {
		t.Error("rangeText without boundaries should be empty")
	}
}

// ── ParseFeed ─────────────────────────────────────────────────────────────────

const wrappedFeed = `{
	"resultsPerPage": 2,
	"vulnerabilities": [
		{"cve": {"id": "CVE-2024-0001", "vulnStatus": "Analyzed",
			"descriptions": [{"lang": "en", "value": "first"}]}},
		{"cve": {"id": "CVE-2024-0002", "vulnStatus": "Rejected"}},
		{"cve": {"id": "CVE-2024-0003", "vulnStatus": "Modified"}}
	]
}`

const bareFeed = `{
	"cve_items": [
		{"id": "CVE-2024-0004", "vulnStatus": "Analyzed"},
		{"id": "", "vulnStatus": "Analyzed"}
	]
}`

func TestParseFeedWrappedShape(t *testing.T) {
	t.Parallel()

	var got []feed.CVERecord
	skipped, err := ParseFeed(strings.NewReader(wrappedFeed), func(rec feed.CVERecord) {
		got = append(got, rec)
	})
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("emitted %d records, want 2 (rejected dropped)", len(got))
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if got[0].CVEID != "CVE-2024-0001" || got[1].CVEID != "CVE-2024-0003" {
		t.Errorf("unexpected ids: %s, %s", got[0].CVEID, got[1].CVEID)
	}
}

func TestParseFeedBareShape(t *testing.T) {
	t.Parallel()

	var got []feed.CVERecord
	skipped, err := ParseFeed(strings.NewReader(bareFeed), func(rec feed.CVERecord) {
		got = append(got, rec)
	})
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if len(got) != 1 || got[0].CVEID != "CVE-2024-0004" {
		t.Fatalf("emitted %v, want only CVE-2024-0004", got)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1 (empty id)", skipped)
	}
}

func TestParseFeedTruncatedInputErrors(t *testing.T) {
	t.Parallel()

	truncated := wrappedFeed[:len(wrappedFeed)/2]
	_, err := ParseFeed(strings.NewReader(truncated), func(feed.CVERecord) {})
	if err == nil {
		t.Fatal("ParseFeed accepted truncated input")
	}
}
