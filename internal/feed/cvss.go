package feed

import (
	"strings"

	gocvss20 "github.com/pandatix/go-cvss/20"
	gocvss30 "github.com/pandatix/go-cvss/30"
	gocvss31 "github.com/pandatix/go-cvss/31"
	gocvss40 "github.com/pandatix/go-cvss/40"
)

// ScoreVector computes the numeric base score for a CVSS vector string.
// Returns 0 when the vector cannot be parsed. CVSS v2 vectors have no
// "CVSS:" prefix; everything else is dispatched on the version prefix.
func ScoreVector(vector string) float64 {
	vector = strings.TrimSpace(vector)
	if vector == "" {
		return 0
	}

	switch {
	case strings.HasPrefix(vector, "CVSS:3.1"):
		if v, err := gocvss31.ParseVector(vector); err == nil {
			return v.BaseScore()
		}
	case strings.HasPrefix(vector, "CVSS:3.0"):
		if v, err := gocvss30.ParseVector(vector); err == nil {
			return v.BaseScore()
		}
	case strings.HasPrefix(vector, "CVSS:4.0"):
		if v, err := gocvss40.ParseVector(vector); err == nil {
			return v.Score()
		}
	case !strings.HasPrefix(vector, "CVSS:"):
		// CVSS v2 vectors look like "AV:N/AC:L/Au:N/C:P/I:P/A:P",
		// optionally wrapped in parentheses in older NVD exports.
		trimmed := strings.Trim(vector, "()")
		if v, err := gocvss20.ParseVector(trimmed); err == nil {
			return v.BaseScore()
		}
	}
	return 0
}

// SeverityFromVector derives a qualitative severity by scoring the vector and
// bucketing the result. Returns nil for unparseable vectors.
func SeverityFromVector(vector string) *Severity {
	score := ScoreVector(vector)
	if score == 0 {
		return nil
	}
	return SeverityFromScore(score)
}
