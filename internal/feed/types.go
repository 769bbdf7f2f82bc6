// Package feed defines the normalized row types produced by the vulnerability
// feed syncers and shared parsing utilities. Concrete syncer implementations
// live in subdirectories (osv, nvd); the ingest package consumes these rows.
package feed

import (
	"encoding/json"
	"time"
)

// Severity is the qualitative severity bucket stored on advisories and CVEs.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// RangeEvent is a single typed event inside an OSV version range
// ("introduced", "fixed", "last_affected", "limit").
type RangeEvent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// VersionRange is one OSV range entry: a range type plus its ordered events.
type VersionRange struct {
	Type   string       `json:"type"`
	Events []RangeEvent `json:"events"`
}

// Reference is a single hyperlink reference associated with an advisory or CVE.
type Reference struct {
	Type string `json:"type,omitempty"`
	URL  string `json:"url"`
}

// Advisory is one normalized OSV-sourced advisory row. Rows are uniquely
// keyed by (Source, AdvisoryID, Ecosystem, PackageName); a single OSV record
// with multiple affected packages yields multiple rows.
//
// Pointer fields allow missing data (nil) to be distinguished from an
// intentional zero value.
type Advisory struct {
	Source      string `json:"source"`
	AdvisoryID  string `json:"advisory_id"`
	Ecosystem   string `json:"ecosystem"`
	PackageName string `json:"package_name"`

	Severity    *Severity `json:"severity,omitempty"`
	CVSSScore   *float64  `json:"cvss_score,omitempty"`
	CVSSVector  *string   `json:"cvss_vector,omitempty"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`

	Ranges           []VersionRange `json:"ranges,omitempty"`
	AffectedVersions []string       `json:"affected_versions,omitempty"`
	FixedVersion     *string        `json:"fixed_version,omitempty"`

	Aliases    []string    `json:"aliases,omitempty"`
	References []Reference `json:"references,omitempty"`

	Published *time.Time `json:"published,omitempty"`
	Modified  *time.Time `json:"modified,omitempty"`
	Withdrawn *time.Time `json:"withdrawn,omitempty"`
}

// Key returns the unique row key. Components are NUL-joined; ecosystem and
// package names never contain NUL.
func (a Advisory) Key() string {
	return a.Source + "\x00" + a.AdvisoryID + "\x00" + a.Ecosystem + "\x00" + a.PackageName
}

// CPEMatch is one vulnerable platform-enumeration criterion attached to a CVE.
// Criteria is the raw CPE 2.3 formatted string; the four optional version
// boundary fields refine the match beyond the CPE's own version component.
type CPEMatch struct {
	Criteria              string `json:"criteria"`
	VersionStartIncluding string `json:"version_start_including,omitempty"`
	VersionStartExcluding string `json:"version_start_excluding,omitempty"`
	VersionEndIncluding   string `json:"version_end_including,omitempty"`
	VersionEndExcluding   string `json:"version_end_excluding,omitempty"`
	// RangeText is a synthesized human-readable rendering of the boundary
	// fields (">= 1.2.0, < 2.0.0"-style), empty when no boundaries are set.
	RangeText string `json:"range_text,omitempty"`
}

// CVERecord is one normalized NVD-sourced CVE row, keyed by CVEID.
type CVERecord struct {
	CVEID string `json:"cve_id"`

	Severity     *Severity `json:"severity,omitempty"`
	CVSSScore    *float64  `json:"cvss_score,omitempty"`
	CVSSVector   *string   `json:"cvss_vector,omitempty"`
	Description  string    `json:"description,omitempty"`
	VulnStatus   string    `json:"vuln_status,omitempty"`
	FixedVersion *string   `json:"fixed_version,omitempty"`

	References []Reference `json:"references,omitempty"`
	CPEMatches []CPEMatch  `json:"cpe_matches,omitempty"`

	Published *time.Time `json:"published,omitempty"`
	Modified  *time.Time `json:"modified,omitempty"`
}

// MarshalRanges serializes ranges for the jsonb column. A nil slice encodes
// as an empty array so Postgres never sees SQL NULL for the column.
func MarshalRanges(ranges []VersionRange) ([]byte, error) {
	if ranges == nil {
		ranges = []VersionRange{}
	}
	return json.Marshal(ranges)
}

// MarshalReferences serializes references for the jsonb column.
func MarshalReferences(refs []Reference) ([]byte, error) {
	if refs == nil {
		refs = []Reference{}
	}
	return json.Marshal(refs)
}

// MarshalCPEMatches serializes CPE matches for the jsonb column.
func MarshalCPEMatches(matches []CPEMatch) ([]byte, error) {
	if matches == nil {
		matches = []CPEMatch{}
	}
	return json.Marshal(matches)
}
