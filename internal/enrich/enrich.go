// Package enrich looks up cryptographic content hashes for resolved
// dependency versions in public package registries and writes them onto the
// graph store's dependency nodes.
package enrich

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcburnia/CRANIS2-sub001/internal/graph"
)

const (
	batchSize       = 10
	interBatchDelay = 200 * time.Millisecond
	callTimeout     = 10 * time.Second
)

// GraphStore is the dependency-node surface the service needs.
type GraphStore interface {
	ListProductDependencies(ctx context.Context, productID string) ([]graph.DependencyNode, error)
	SetDependencyHash(ctx context.Context, productID string, u graph.HashUpdate) error
}

// Result aggregates one enrichment run's outcome.
type Result struct {
	Enriched int
	Skipped  int
	Failed   int
}

// hashInfo is a successful registry lookup.
type hashInfo struct {
	Hash        string
	Algorithm   string
	DownloadURL string
}

// Config holds the registry endpoints.
type Config struct {
	NPMRegistryURL  string
	PyPIRegistryURL string
}

// Service enriches dependency nodes with registry hashes. It is designed to
// be invoked fire-and-forget after SBOM storage; nothing it does can fail
// its caller.
type Service struct {
	graph  GraphStore
	client *http.Client
	cfg    Config
}

// New creates a Service. Pass nil client to use http.DefaultClient.
func New(g GraphStore, client *http.Client, cfg Config) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.NPMRegistryURL == "" {
		cfg.NPMRegistryURL = "https://registry.npmjs.org"
	}
	if cfg.PyPIRegistryURL == "" {
		cfg.PyPIRegistryURL = "https://pypi.org/pypi"
	}
	return &Service{graph: g, client: client, cfg: cfg}
}

// EnrichProduct fetches hashes for every supported, versioned, not-yet-hashed
// dependency of the product, in batches of ten concurrent registry calls
// with a short pause between batches. Individual failures are logged and
// counted; the run always completes and never returns an error.
func (s *Service) EnrichProduct(ctx context.Context, productID string) Result {
	deps, err := s.graph.ListProductDependencies(ctx, productID)
	if err != nil {
		slog.Error("hash enrichment: list dependencies failed",
			"product_id", productID, "error", err)
		return Result{}
	}

	var pending []graph.DependencyNode
	var res Result
	for _, dep := range deps {
		switch {
		case dep.HasHash:
			res.Skipped++
		case dep.Version == "":
			res.Skipped++
		case dep.Ecosystem != "npm" && dep.Ecosystem != "pypi":
			res.Skipped++
		default:
			pending = append(pending, dep)
		}
	}

	var enriched, failed atomic.Int64
	for start := 0; start < len(pending); start += batchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+batchSize, len(pending))

		var wg sync.WaitGroup
		for _, dep := range pending[start:end] {
			wg.Add(1)
			go func(dep graph.DependencyNode) {
				defer wg.Done()
				if s.enrichOne(ctx, productID, dep) {
					enriched.Add(1)
				} else {
					failed.Add(1)
				}
			}(dep)
		}
		wg.Wait()

		if end < len(pending) {
			select {
			case <-ctx.Done():
			case <-time.After(interBatchDelay):
			}
		}
	}

	res.Enriched = int(enriched.Load())
	res.Failed = int(failed.Load())
	slog.Info("hash enrichment finished", "product_id", productID,
		"enriched", res.Enriched, "skipped", res.Skipped, "failed", res.Failed)
	return res
}

func (s *Service) enrichOne(ctx context.Context, productID string, dep graph.DependencyNode) bool {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var info *hashInfo
	var err error
	switch dep.Ecosystem {
	case "npm":
		info, err = s.fetchNPM(callCtx, dep.Name, dep.Version)
	case "pypi":
		info, err = s.fetchPyPI(callCtx, dep.Name, dep.Version)
	}
	if err != nil {
		slog.Warn("hash lookup failed", "ecosystem", dep.Ecosystem,
			"package", dep.Name, "version", dep.Version, "error", err)
		return false
	}

	err = s.graph.SetDependencyHash(ctx, productID, graph.HashUpdate{
		PURL:          dep.PURL,
		Hash:          info.Hash,
		HashAlgorithm: info.Algorithm,
		DownloadURL:   info.DownloadURL,
	})
	if err != nil {
		slog.Warn("hash write failed", "package", dep.Name, "error", err)
		return false
	}
	return true
}
