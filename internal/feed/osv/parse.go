// Package osv implements the per-ecosystem OSV syncer: full bulk-archive
// sync plus incremental sync via the modified-id change feed.
//
// OSV publishes one archive per ecosystem at <base>/<ECOSYSTEM>/all.zip
// containing one JSON file per advisory (OSV schema v1,
// https://ossf.github.io/osv-schema/), a reverse-chronological CSV change
// feed at <base>/<ECOSYSTEM>/modified_ids.csv, and individual advisories at
// <base>/<ECOSYSTEM>/<ID>.json.
package osv

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/mcburnia/CRANIS2-sub001/internal/feed"
)

// --- OSV advisory JSON types ---

type osvAdvisory struct {
	ID               string          `json:"id"`
	Aliases          []string        `json:"aliases"`
	Published        string          `json:"published"`
	Modified         string          `json:"modified"`
	Withdrawn        string          `json:"withdrawn"`
	Summary          string          `json:"summary"`
	Details          string          `json:"details"`
	Affected         []osvAffected   `json:"affected"`
	Severity         []osvSeverity   `json:"severity"`
	References       []osvReference  `json:"references"`
	DatabaseSpecific json.RawMessage `json:"database_specific"`
}

type osvAffected struct {
	Package  osvPackage `json:"package"`
	Ranges   []osvRange `json:"ranges"`
	Versions []string   `json:"versions"`
}

type osvPackage struct {
	Ecosystem string `json:"ecosystem"`
	Name      string `json:"name"`
	Purl      string `json:"purl"`
}

// osvRange events are single-key objects ({"introduced": "..."} etc.), so
// the array is decoded as raw maps and flattened into typed events.
type osvRange struct {
	Type   string              `json:"type"`
	Events []map[string]string `json:"events"`
}

// osvSeverity carries a full CVSS vector in Score; OSV has no separate
// numeric base score — it is computed from the vector.
type osvSeverity struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

type osvReference struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type osvDatabaseSpecific struct {
	Severity string `json:"severity"`
}

// ParseAdvisory decodes one OSV advisory JSON file into zero or more
// normalized rows — one per distinct affected package. Affected blocks
// repeating the same (ecosystem, package) pair are merged here: ranges
// concatenated, versions unioned, fixed version kept from the first block
// that has one. Entries without a valid package name and ecosystem are
// skipped.
func ParseAdvisory(r io.Reader) ([]feed.Advisory, error) {
	var adv osvAdvisory
	if err := json.NewDecoder(r).Decode(&adv); err != nil {
		return nil, err
	}

	advisoryID := strings.TrimSpace(feed.StripNullBytes(adv.ID))
	if advisoryID == "" {
		return nil, nil
	}

	base := feed.Advisory{
		Source:      SourceForID(advisoryID),
		AdvisoryID:  advisoryID,
		Title:       feed.StripNullBytes(adv.Summary),
		Description: feed.TruncateDescription(feed.StripNullBytes(adv.Details)),
		Published:   feed.ParseTimePtr(adv.Published),
		Modified:    feed.ParseTimePtr(adv.Modified),
		Withdrawn:   feed.ParseTimePtr(adv.Withdrawn),
	}

	for _, a := range adv.Aliases {
		if alias := strings.TrimSpace(feed.StripNullBytes(a)); alias != "" {
			base.Aliases = append(base.Aliases, alias)
		}
	}
	for _, ref := range adv.References {
		if ref.URL == "" {
			continue
		}
		base.References = append(base.References, feed.Reference{
			Type: feed.StripNullBytes(ref.Type),
			URL:  feed.StripNullBytes(ref.URL),
		})
	}

	applySeverity(&base, adv)

	// One row per affected package, merging repeated package keys.
	index := make(map[string]int)
	var rows []feed.Advisory
	for _, aff := range adv.Affected {
		eco := strings.TrimSpace(feed.StripNullBytes(aff.Package.Ecosystem))
		pkg := strings.TrimSpace(feed.StripNullBytes(aff.Package.Name))
		if eco == "" || pkg == "" {
			continue
		}

		ranges, fixed := convertRanges(aff.Ranges)
		versions := cleanVersions(aff.Versions)

		key := eco + "\x00" + pkg
		if i, seen := index[key]; seen {
			rows[i].Ranges = append(rows[i].Ranges, ranges...)
			rows[i].AffectedVersions = unionVersions(rows[i].AffectedVersions, versions)
			if rows[i].FixedVersion == nil {
				rows[i].FixedVersion = fixed
			}
			continue
		}

		row := base
		row.Ecosystem = eco
		row.PackageName = pkg
		row.Ranges = ranges
		row.AffectedVersions = versions
		row.FixedVersion = fixed
		index[key] = len(rows)
		rows = append(rows, row)
	}

	return rows, nil
}

// SourceForID derives the advisory source label from the ID prefix.
// GHSA ids are attributed to "github"; other prefixes are used verbatim.
func SourceForID(id string) string {
	prefix, _, found := strings.Cut(id, "-")
	if !found || prefix == "" {
		return "osv"
	}
	prefix = strings.ToLower(prefix)
	if prefix == "ghsa" {
		return "github"
	}
	return prefix
}

// applySeverity fills severity/score/vector from database_specific.severity
// and the first usable CVSS vector, in that preference order for the label.
func applySeverity(row *feed.Advisory, adv osvAdvisory) {
	// Vector: prefer CVSS_V3 over other types.
	var vector string
	for _, sev := range adv.Severity {
		if sev.Score == "" {
			continue
		}
		if strings.EqualFold(sev.Type, "CVSS_V3") {
			vector = sev.Score
			break
		}
		if vector == "" {
			vector = sev.Score
		}
	}
	if vector != "" {
		v := feed.StripNullBytes(vector)
		row.CVSSVector = &v
		if score := feed.ScoreVector(v); score > 0 {
			row.CVSSScore = &score
		}
	}

	// Qualitative label: GHSA-style database_specific.severity first, then
	// derived from the numeric score.
	if len(adv.DatabaseSpecific) > 0 {
		var ds osvDatabaseSpecific
		if err := json.Unmarshal(adv.DatabaseSpecific, &ds); err == nil {
			row.Severity = feed.ParseSeverity(ds.Severity)
		}
	}
	if row.Severity == nil && row.CVSSScore != nil {
		row.Severity = feed.SeverityFromScore(*row.CVSSScore)
	}
}

// convertRanges flattens OSV ranges into typed events and extracts the first
// "fixed" event as the best-effort fixed version.
func convertRanges(ranges []osvRange) ([]feed.VersionRange, *string) {
	var out []feed.VersionRange
	var fixed *string
	for _, rng := range ranges {
		vr := feed.VersionRange{Type: feed.StripNullBytes(rng.Type)}
		for _, ev := range rng.Events {
			for typ, val := range ev {
				vr.Events = append(vr.Events, feed.RangeEvent{
					Type:  feed.StripNullBytes(typ),
					Value: feed.StripNullBytes(val),
				})
				if typ == "fixed" && fixed == nil && val != "" {
					v := feed.StripNullBytes(val)
					fixed = &v
				}
			}
		}
		out = append(out, vr)
	}
	return out, fixed
}

func cleanVersions(versions []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(versions))
	for _, v := range versions {
		v = strings.TrimSpace(feed.StripNullBytes(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func unionVersions(base, add []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, v := range base {
		seen[v] = struct{}{}
	}
	for _, v := range add {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			base = append(base, v)
		}
	}
	return base
}
