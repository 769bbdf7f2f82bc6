// Package nvd implements the NVD syncer: yearly XZ-compressed JSON feeds for
// full syncs plus the "Modified"/"Recent" delta feeds for incremental syncs,
// and the derived CPE index refresh that follows each run.
//
// Two feed shapes are accepted: the community mirror format
// {"cve_items": [...]} and the official API shape
// {"vulnerabilities": [{"cve": {...}}]}.
package nvd

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/mcburnia/CRANIS2-sub001/internal/feed"
)

// --- NVD feed JSON types ---

type nvdVulnWrapper struct {
	CVE nvdCVE `json:"cve"`
}

type nvdCVE struct {
	ID             string           `json:"id"`
	VulnStatus     string           `json:"vulnStatus"`
	Published      string           `json:"published"`
	LastModified   string           `json:"lastModified"`
	Descriptions   []nvdDescription `json:"descriptions"`
	Metrics        nvdMetrics       `json:"metrics"`
	Configurations []nvdConfig      `json:"configurations"`
	References     []nvdReference   `json:"references"`
}

type nvdDescription struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

type nvdMetrics struct {
	CVSSV31 []nvdCVSSMetric `json:"cvssMetricV31"`
	CVSSV30 []nvdCVSSMetric `json:"cvssMetricV30"`
	CVSSV2  []nvdCVSSMetric `json:"cvssMetricV2"`
}

type nvdCVSSMetric struct {
	Source   string      `json:"source"`
	CVSSData nvdCVSSData `json:"cvssData"`
}

type nvdCVSSData struct {
	Version      string  `json:"version"`
	VectorString string  `json:"vectorString"`
	BaseScore    float64 `json:"baseScore"`
	BaseSeverity string  `json:"baseSeverity"`
}

type nvdConfig struct {
	Nodes []nvdNode `json:"nodes"`
}

type nvdNode struct {
	CPEMatch []nvdCPEMatch `json:"cpeMatch"`
	Children []nvdNode     `json:"children"`
}

type nvdCPEMatch struct {
	Criteria              string `json:"criteria"`
	Vulnerable            bool   `json:"vulnerable"`
	VersionStartIncluding string `json:"versionStartIncluding"`
	VersionStartExcluding string `json:"versionStartExcluding"`
	VersionEndIncluding   string `json:"versionEndIncluding"`
	VersionEndExcluding   string `json:"versionEndExcluding"`
}

type nvdReference struct {
	URL string `json:"url"`
}

// ParseFeed streams one decompressed NVD feed, invoking emit for every
// accepted CVE. Rejected entries produce no call; malformed array elements
// are skipped and counted via the returned total. The "vulnerabilities" and
// "cve_items" arrays are processed one record at a time — the full array is
// never buffered (yearly feeds decompress to hundreds of megabytes).
func ParseFeed(r io.Reader, emit func(feed.CVERecord)) (skipped int, err error) {
	dec := json.NewDecoder(r)

	if _, err := dec.Token(); err != nil {
		return 0, fmt.Errorf("opening brace: %w", err)
	}

	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return skipped, fmt.Errorf("read key: %w", err)
		}
		keyStr, ok := key.(string)
		if !ok {
			var discard json.RawMessage
			if err := dec.Decode(&discard); err != nil {
				return skipped, fmt.Errorf("discard non-string key value: %w", err)
			}
			continue
		}

		switch keyStr {
		case "vulnerabilities":
			n, err := decodeArray(dec, emit, func(dec *json.Decoder) (nvdCVE, error) {
				var w nvdVulnWrapper
				err := dec.Decode(&w)
				return w.CVE, err
			})
			skipped += n
			if err != nil {
				return skipped, err
			}

		case "cve_items":
			n, err := decodeArray(dec, emit, func(dec *json.Decoder) (nvdCVE, error) {
				var c nvdCVE
				err := dec.Decode(&c)
				return c, err
			})
			skipped += n
			if err != nil {
				return skipped, err
			}

		default:
			var discard json.RawMessage
			if err := dec.Decode(&discard); err != nil {
				return skipped, fmt.Errorf("discard %q: %w", keyStr, err)
			}
		}
	}
	return skipped, nil
}

// decodeArray walks one CVE array with the given element decoder.
func decodeArray(dec *json.Decoder, emit func(feed.CVERecord), next func(*json.Decoder) (nvdCVE, error)) (skipped int, err error) {
	if _, err := dec.Token(); err != nil {
		return 0, fmt.Errorf("array '[': %w", err)
	}
	for dec.More() {
		cve, err := next(dec)
		if err != nil {
			// A malformed element desynchronizes the decoder; the rest of
			// this array cannot be recovered.
			return skipped, fmt.Errorf("decode element: %w", err)
		}
		rec := ToRecord(cve)
		if rec == nil {
			skipped++
			continue
		}
		emit(*rec)
	}
	if _, err := dec.Token(); err != nil {
		return skipped, fmt.Errorf("array ']': %w", err)
	}
	return skipped, nil
}

// ToRecord converts one NVD CVE object to a normalized record. Returns nil
// for entries without an ID and for rejected entries, which are dropped
// entirely rather than stored as tombstones.
func ToRecord(cve nvdCVE) *feed.CVERecord {
	id := strings.TrimSpace(feed.StripNullBytes(cve.ID))
	if id == "" {
		return nil
	}
	if strings.EqualFold(cve.VulnStatus, "Rejected") {
		return nil
	}

	rec := &feed.CVERecord{
		CVEID:      id,
		VulnStatus: feed.StripNullBytes(cve.VulnStatus),
		Published:  feed.ParseTimePtr(cve.Published),
		Modified:   feed.ParseTimePtr(cve.LastModified),
	}

	for _, d := range cve.Descriptions {
		if strings.EqualFold(d.Lang, "en") {
			rec.Description = feed.TruncateDescription(feed.StripNullBytes(d.Value))
			break
		}
	}

	applyCVSS(rec, cve.Metrics)

	for _, ref := range cve.References {
		if ref.URL == "" {
			continue
		}
		rec.References = append(rec.References, feed.Reference{
			URL: feed.StripNullBytes(ref.URL),
		})
	}
	rec.FixedVersion = fixedVersionFromReferences(rec.References)

	rec.CPEMatches = collectCPEMatches(cve.Configurations)

	return rec
}

// applyCVSS sets severity/score/vector preferring v3.1 over v3.0 over v2.
// v2 carries no qualitative severity, so it is derived from the numeric
// score via the v3 rating thresholds.
func applyCVSS(rec *feed.CVERecord, m nvdMetrics) {
	if entry := firstMetric(m.CVSSV31); entry != nil {
		setCVSS(rec, entry, false)
		return
	}
	if entry := firstMetric(m.CVSSV30); entry != nil {
		setCVSS(rec, entry, false)
		return
	}
	if entry := firstMetric(m.CVSSV2); entry != nil {
		setCVSS(rec, entry, true)
	}
}

func setCVSS(rec *feed.CVERecord, entry *nvdCVSSMetric, v2 bool) {
	score := entry.CVSSData.BaseScore
	if score == 0 && entry.CVSSData.VectorString != "" {
		// Some mirror entries omit baseScore; recompute from the vector.
		score = feed.ScoreVector(entry.CVSSData.VectorString)
	}
	if score > 0 {
		rec.CVSSScore = &score
	}
	if entry.CVSSData.VectorString != "" {
		v := feed.StripNullBytes(entry.CVSSData.VectorString)
		rec.CVSSVector = &v
	}
	if v2 {
		if score > 0 {
			rec.Severity = feed.SeverityFromScore(score)
		}
		return
	}
	rec.Severity = feed.ParseSeverity(entry.CVSSData.BaseSeverity)
	if rec.Severity == nil && score > 0 {
		rec.Severity = feed.SeverityFromScore(score)
	}
}

// firstMetric returns the NVD-authored entry when present, else the first.
func firstMetric(entries []nvdCVSSMetric) *nvdCVSSMetric {
	for i := range entries {
		if entries[i].Source == "nvd@nist.gov" {
			return &entries[i]
		}
	}
	if len(entries) > 0 {
		return &entries[0]
	}
	return nil
}

// collectCPEMatches flattens every vulnerable=true CPE match from the nested
// configuration/node tree, deduplicated by criteria+boundaries.
func collectCPEMatches(configs []nvdConfig) []feed.CPEMatch {
	var out []feed.CPEMatch
	seen := make(map[string]struct{})

	var walk func(nodes []nvdNode)
	walk = func(nodes []nvdNode) {
		for _, node := range nodes {
			for _, m := range node.CPEMatch {
				if !m.Vulnerable || m.Criteria == "" {
					continue
				}
				match := feed.CPEMatch{
					Criteria:              feed.StripNullBytes(m.Criteria),
					VersionStartIncluding: feed.StripNullBytes(m.VersionStartIncluding),
					VersionStartExcluding: feed.StripNullBytes(m.VersionStartExcluding),
					VersionEndIncluding:   feed.StripNullBytes(m.VersionEndIncluding),
					VersionEndExcluding:   feed.StripNullBytes(m.VersionEndExcluding),
				}
				match.RangeText = rangeText(match)
				key := match.Criteria + "\x00" + match.VersionStartIncluding +
					"\x00" + match.VersionStartExcluding +
					"\x00" + match.VersionEndIncluding +
					"\x00" + match.VersionEndExcluding
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, match)
			}
			walk(node.Children)
		}
	}
	walk(flattenNodes(configs))
	return out
}

func flattenNodes(configs []nvdConfig) []nvdNode {
	var nodes []nvdNode
	for _, cfg := range configs {
		nodes = append(nodes, cfg.Nodes...)
	}
	return nodes
}

// rangeText synthesizes a human-readable version range from the boundary
// fields, e.g. ">= 2.0.0, < 2.4.1". Empty when no boundaries are present.
func rangeText(m feed.CPEMatch) string {
	var parts []string
	if m.VersionStartIncluding != "" {
		parts = append(parts, ">= "+m.VersionStartIncluding)
	}
	if m.VersionStartExcluding != "" {
		parts = append(parts, "> "+m.VersionStartExcluding)
	}
	if m.VersionEndIncluding != "" {
		parts = append(parts, "<= "+m.VersionEndIncluding)
	}
	if m.VersionEndExcluding != "" {
		parts = append(parts, "< "+m.VersionEndExcluding)
	}
	return strings.Join(parts, ", ")
}

// releaseTagPattern matches release-tag-shaped reference URLs from which a
// fixed version can be recovered, e.g.
// https://github.com/acme/widget/releases/tag/v2.4.1
var releaseTagPattern = regexp.MustCompile(`/(?:releases/tag|tags|-/tags)/v?(\d+(?:\.\d+){1,3})/?$`)

// fixedVersionFromReferences recovers a best-effort fixed version by
// pattern-matching release-tag URLs among the CVE's references.
func fixedVersionFromReferences(refs []feed.Reference) *string {
	for _, ref := range refs {
		if m := releaseTagPattern.FindStringSubmatch(ref.URL); m != nil {
			v := m[1]
			return &v
		}
	}
	return nil
}
