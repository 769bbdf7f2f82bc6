// ABOUTME: npm and PyPI registry clients resolving published content hashes per version.
// ABOUTME: npm SRI strings are split into algorithm and digest; PyPI prefers sdist sha256.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// npmVersionDoc is the slice of the npm registry's version document we read.
type npmVersionDoc struct {
	Dist struct {
		Integrity string `json:"integrity"`
		Tarball   string `json:"tarball"`
	} `json:"dist"`
}

// pypiReleaseDoc is the slice of PyPI's JSON API release document we read.
type pypiReleaseDoc struct {
	URLs []struct {
		PackageType string            `json:"packagetype"`
		URL         string            `json:"url"`
		Digests     map[string]string `json:"digests"`
	} `json:"urls"`
}

// fetchNPM resolves the published integrity string for one npm package
// version. Scoped package names keep their "@" but encode the scope slash,
// which is how the registry addresses them.
func (s *Service) fetchNPM(ctx context.Context, name, version string) (*hashInfo, error) {
	escaped := name
	if strings.HasPrefix(name, "@") {
		escaped = strings.Replace(name, "/", "%2F", 1)
	}
	rawURL := fmt.Sprintf("%s/%s/%s", s.cfg.NPMRegistryURL, escaped, url.PathEscape(version))

	var doc npmVersionDoc
	if err := s.getJSON(ctx, rawURL, &doc); err != nil {
		return nil, err
	}
	if doc.Dist.Integrity == "" {
		return nil, fmt.Errorf("no integrity field for %s@%s", name, version)
	}

	algorithm, digest, err := parseIntegrity(doc.Dist.Integrity)
	if err != nil {
		return nil, err
	}
	return &hashInfo{Hash: digest, Algorithm: algorithm, DownloadURL: doc.Dist.Tarball}, nil
}

// parseIntegrity splits an SRI string like "sha512-<base64>" into a spelled
// out algorithm name and the raw digest.
func parseIntegrity(integrity string) (algorithm, digest string, err error) {
	prefix, rest, ok := strings.Cut(integrity, "-")
	if !ok || rest == "" {
		return "", "", fmt.Errorf("malformed integrity string %q", integrity)
	}
	switch prefix {
	case "sha512":
		return "SHA-512", rest, nil
	case "sha384":
		return "SHA-384", rest, nil
	case "sha256":
		return "SHA-256", rest, nil
	case "sha1":
		return "SHA-1", rest, nil
	default:
		return "", "", fmt.Errorf("unknown integrity algorithm %q", prefix)
	}
}

// fetchPyPI resolves the SHA-256 digest for one release, preferring a source
// distribution over wheel artifacts.
func (s *Service) fetchPyPI(ctx context.Context, name, version string) (*hashInfo, error) {
	rawURL := fmt.Sprintf("%s/%s/%s/json",
		s.cfg.PyPIRegistryURL, url.PathEscape(name), url.PathEscape(version))

	var doc pypiReleaseDoc
	if err := s.getJSON(ctx, rawURL, &doc); err != nil {
		return nil, err
	}

	best := -1
	for i, u := range doc.URLs {
		if u.Digests["sha256"] == "" {
			continue
		}
		if u.PackageType == "sdist" {
			best = i
			break
		}
		if best < 0 {
			best = i
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("no sha256 digest for %s==%s", name, version)
	}
	u := doc.URLs[best]
	return &hashInfo{Hash: u.Digests["sha256"], Algorithm: "SHA-256", DownloadURL: u.URL}, nil
}

func (s *Service) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
