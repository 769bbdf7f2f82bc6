// ABOUTME: Canonical content hashes for advisory and CVE rows, used for change detection.
// ABOUTME: JSON canonicalization keeps the hash stable across field ordering.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	jsoncanonical "github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"

	"github.com/mcburnia/CRANIS2-sub001/internal/feed"
)

// AdvisoryContentHash returns the hex SHA-256 of the JCS (RFC 8785)
// serialization of the row's mutable payload. Identity fields are included
// so the hash is stable per row, batch tags are not.
func AdvisoryContentHash(row feed.Advisory) string {
	return jcsHash(row)
}

// CVEContentHash is AdvisoryContentHash for CVE records.
func CVEContentHash(row feed.CVERecord) string {
	return jcsHash(row)
}

func jcsHash(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	canonical, err := jsoncanonical.Transform(raw)
	if err != nil {
		// Non-canonical fallback still detects most changes.
		canonical = raw
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
