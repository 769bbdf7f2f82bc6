package feed

import (
	"bytes"
	"regexp"
	"strings"
	"time"
)

// descriptionMaxRunes bounds the stored description length; some upstream
// advisories carry entire changelogs in the details field.
const descriptionMaxRunes = 4000

// timeLayouts is the ordered list of timestamp formats encountered in CVE feeds.
// Never call time.Parse(time.RFC3339, val) directly on feed data — upstream
// sources are inconsistent about timezone suffixes and sub-second precision.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses a feed timestamp using a multi-layout fallback. Returns a
// zero time.Time (not an error) on failure so callers can use nil-pointer
// semantics with a simple zero check.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ParseTimePtr is like ParseTime but returns nil for zero/empty input.
func ParseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := ParseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

// StripNullBytes removes null bytes (\x00) from a string. Postgres TEXT and
// JSONB columns reject null bytes.
func StripNullBytes(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// StripNullBytesJSON removes null bytes from a JSON byte slice.
func StripNullBytesJSON(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte{0}, []byte{})
}

// TruncateDescription bounds a description to the stored maximum, cutting on
// a rune boundary so multi-byte text is never split mid-character.
func TruncateDescription(s string) string {
	runes := []rune(s)
	if len(runes) <= descriptionMaxRunes {
		return s
	}
	return string(runes[:descriptionMaxRunes])
}

// cveIDPattern matches CVE IDs in the canonical format CVE-YYYY-NNNNN+.
var cveIDPattern = regexp.MustCompile(`^CVE-\d{4}-\d+$`)

// IsCVEID reports whether s is a canonical CVE identifier.
func IsCVEID(s string) bool {
	return cveIDPattern.MatchString(s)
}

// ParseSeverity maps an upstream severity label onto the stored enum.
// Unknown labels map to nil rather than an invented bucket.
func ParseSeverity(s string) *Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		sev := SeverityCritical
		return &sev
	case "high":
		sev := SeverityHigh
		return &sev
	case "medium", "moderate":
		sev := SeverityMedium
		return &sev
	case "low":
		sev := SeverityLow
		return &sev
	}
	return nil
}

// SeverityFromScore derives a qualitative severity from a CVSS base score
// using the v3.x rating thresholds. Used for CVSS v2-only entries, which
// carry no qualitative severity of their own.
func SeverityFromScore(score float64) *Severity {
	var sev Severity
	switch {
	case score >= 9.0:
		sev = SeverityCritical
	case score >= 7.0:
		sev = SeverityHigh
	case score >= 4.0:
		sev = SeverityMedium
	case score > 0:
		sev = SeverityLow
	default:
		return nil
	}
	return &sev
}
