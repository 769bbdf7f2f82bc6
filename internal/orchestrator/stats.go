// ABOUTME: Point-in-time dataset snapshot: per-source status rows plus table counts.
// ABOUTME: Backs the operator-facing stats command.
package orchestrator

import (
	"context"

	"github.com/mcburnia/CRANIS2-sub001/internal/store"
)

// EcosystemCount pairs an advisory ecosystem with its row and distinct
// package counts.
type EcosystemCount struct {
	Ecosystem string
	Rows      int64
	Packages  int64
}

// Stats is a point-in-time snapshot of the dataset and per-source sync
// state, for operator-facing reporting.
type Stats struct {
	Sources    []store.SyncStatus
	Advisories []EcosystemCount
	CVEs       int64
	CPERows    int64
}

// CollectStats gathers current per-source status rows and table counts.
func (o *Orchestrator) CollectStats(ctx context.Context) (*Stats, error) {
	sources, err := o.store.ListSyncStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Sources: sources}
	for _, eco := range o.ecosystems {
		rows, packages, err := o.store.CountAdvisories(ctx, eco)
		if err != nil {
			return nil, err
		}
		stats.Advisories = append(stats.Advisories, EcosystemCount{
			Ecosystem: eco,
			Rows:      rows,
			Packages:  packages,
		})
	}

	if stats.CVEs, err = o.store.CountCVEs(ctx); err != nil {
		return nil, err
	}
	if stats.CPERows, err = o.store.CountCPEIndexRows(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}
