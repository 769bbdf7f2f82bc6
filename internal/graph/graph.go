// Package graph wraps the Neo4j graph store that owns product dependency
// nodes. The vulnerability core never creates or deletes these nodes; it
// only reads them and annotates them with registry hash metadata.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DependencyNode is the slice of a graph dependency node the enrichment
// service needs: identity plus whether a hash is already present.
type DependencyNode struct {
	PURL      string
	Name      string
	Version   string
	Ecosystem string
	HasHash   bool
}

// HashUpdate carries the registry metadata written back onto one node.
type HashUpdate struct {
	PURL          string
	Hash          string
	HashAlgorithm string
	DownloadURL   string
}

// Store is a thin session-per-call client over the graph database.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewStore connects and verifies reachability.
func NewStore(ctx context.Context, uri, username, password, database string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("graph: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph: verify connectivity: %w", err)
	}
	return &Store{driver: driver, database: database}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// ListProductDependencies returns every dependency node attached to the
// product, with enough detail to decide skip vs fetch.
func (s *Store) ListProductDependencies(ctx context.Context, productID string) ([]DependencyNode, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (p:Product {id: $productId})-[:DEPENDS_ON]->(d:Dependency)
		 RETURN d.purl AS purl, d.name AS name, d.version AS version,
		        d.ecosystem AS ecosystem, d.hash AS hash`,
		map[string]any{"productId": productID})
	if err != nil {
		return nil, fmt.Errorf("graph: list dependencies: %w", err)
	}

	var nodes []DependencyNode
	for result.Next(ctx) {
		rec := result.Record()
		nodes = append(nodes, DependencyNode{
			PURL:      stringProp(rec, "purl"),
			Name:      stringProp(rec, "name"),
			Version:   stringProp(rec, "version"),
			Ecosystem: stringProp(rec, "ecosystem"),
			HasHash:   stringProp(rec, "hash") != "",
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("graph: list dependencies: %w", err)
	}
	return nodes, nil
}

// SetDependencyHash writes hash metadata onto the node identified by purl
// under the given product. Matching an absent node is not an error; the
// graph layer owns node lifecycle and a node may have been removed since
// the dependency list was read.
func (s *Store) SetDependencyHash(ctx context.Context, productID string, u HashUpdate) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH (p:Product {id: $productId})-[:DEPENDS_ON]->(d:Dependency {purl: $purl})
		 SET d.hash = $hash,
		     d.hashAlgorithm = $algorithm,
		     d.downloadUrl = $downloadUrl,
		     d.hashEnrichedAt = $enrichedAt`,
		map[string]any{
			"productId":   productID,
			"purl":        u.PURL,
			"hash":        u.Hash,
			"algorithm":   u.HashAlgorithm,
			"downloadUrl": u.DownloadURL,
			"enrichedAt":  time.Now().UTC().Format(time.RFC3339),
		})
	if err != nil {
		return fmt.Errorf("graph: set dependency hash: %w", err)
	}
	return nil
}

// CountProductDependencies returns the dependency node count for a product.
func (s *Store) CountProductDependencies(ctx context.Context, productID string) (int64, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (p:Product {id: $productId})-[:DEPENDS_ON]->(d:Dependency)
		 RETURN count(d) AS n`,
		map[string]any{"productId": productID})
	if err != nil {
		return 0, fmt.Errorf("graph: count dependencies: %w", err)
	}
	rec, err := result.Single(ctx)
	if err != nil {
		return 0, fmt.Errorf("graph: count dependencies: %w", err)
	}
	v, _ := rec.Get("n")
	n, err := AsInt64(v)
	if err != nil {
		return 0, fmt.Errorf("graph: count dependencies: %w", err)
	}
	return n, nil
}

func stringProp(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
