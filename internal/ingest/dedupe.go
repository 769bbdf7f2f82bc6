// Package ingest is the shared upsert/dedup engine used by every feed
// syncer: it deduplicates parsed rows by their identity key, merges
// duplicate payloads, and writes fixed-size batches through the store.
package ingest

import (
	"github.com/mcburnia/CRANIS2-sub001/internal/feed"
)

// DedupeAdvisories merges raw advisory rows sharing an identity key into one
// row each, preserving first-seen order. Merge semantics: ranges are
// concatenated, affected versions set-unioned (order preserved), aliases and
// references unioned, and fixed_version keeps the first non-nil value.
//
// Required before upserting: a multi-row INSERT ... ON CONFLICT fails when
// the same key appears twice in one statement.
func DedupeAdvisories(rows []feed.Advisory) []feed.Advisory {
	index := make(map[string]int, len(rows))
	out := make([]feed.Advisory, 0, len(rows))

	for _, row := range rows {
		key := row.Key()
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, row)
			continue
		}
		out[i] = mergeAdvisory(out[i], row)
	}
	return out
}

// DedupeCVEs keeps the last row seen per CVE ID, preserving first-seen order.
// Delta feeds list a CVE once; duplicates only arise when the Modified and
// Recent feeds overlap, and the payloads are then identical.
func DedupeCVEs(rows []feed.CVERecord) []feed.CVERecord {
	index := make(map[string]int, len(rows))
	out := make([]feed.CVERecord, 0, len(rows))

	for _, row := range rows {
		i, seen := index[row.CVEID]
		if !seen {
			index[row.CVEID] = len(out)
			out = append(out, row)
			continue
		}
		out[i] = row
	}
	return out
}

func mergeAdvisory(dst, src feed.Advisory) feed.Advisory {
	dst.Ranges = append(dst.Ranges, src.Ranges...)
	dst.AffectedVersions = unionStrings(dst.AffectedVersions, src.AffectedVersions)
	dst.Aliases = unionStrings(dst.Aliases, src.Aliases)
	dst.References = unionReferences(dst.References, src.References)
	if dst.FixedVersion == nil {
		dst.FixedVersion = src.FixedVersion
	}
	if dst.Severity == nil {
		dst.Severity = src.Severity
	}
	if dst.CVSSScore == nil {
		dst.CVSSScore = src.CVSSScore
		dst.CVSSVector = src.CVSSVector
	}
	if dst.Description == "" {
		dst.Description = src.Description
	}
	return dst
}

// unionStrings appends elements of add not already in base, preserving order.
func unionStrings(base, add []string) []string {
	if len(add) == 0 {
		return base
	}
	seen := make(map[string]struct{}, len(base))
	for _, s := range base {
		seen[s] = struct{}{}
	}
	for _, s := range add {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			base = append(base, s)
		}
	}
	return base
}

func unionReferences(base, add []feed.Reference) []feed.Reference {
	if len(add) == 0 {
		return base
	}
	seen := make(map[string]struct{}, len(base))
	for _, r := range base {
		seen[r.URL] = struct{}{}
	}
	for _, r := range add {
		if _, ok := seen[r.URL]; !ok {
			seen[r.URL] = struct{}{}
			base = append(base, r)
		}
	}
	return base
}
