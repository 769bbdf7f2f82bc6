// ABOUTME: Sequences all sources through one sync cycle under a cluster-wide advisory lock.
// ABOUTME: Per-source failures are collected and notified; only lock errors fail the cycle.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mcburnia/CRANIS2-sub001/internal/store"
)

// SourceSyncer runs one source's sync end to end, recording its own
// sync_status transitions.
type SourceSyncer interface {
	Sync(ctx context.Context) error
}

// EcosystemSyncer is a SourceSyncer parameterized by ecosystem name.
type EcosystemSyncer interface {
	Sync(ctx context.Context, ecosystem string) error
}

// LockStore provides the cluster-wide single-flight lock.
type LockStore interface {
	TryAcquireSyncLock(ctx context.Context) (*store.SyncLock, bool, error)
	ListSyncStatus(ctx context.Context) ([]store.SyncStatus, error)
	CountAdvisories(ctx context.Context, ecosystem string) (rows, packages int64, err error)
	CountCVEs(ctx context.Context) (int64, error)
	CountCPEIndexRows(ctx context.Context) (int64, error)
}

// Notifier delivers operator alerts. Implementations must not block the
// caller on delivery failures.
type Notifier interface {
	Notify(ctx context.Context, subject, body string)
}

// Orchestrator sequences all sources through one sync cycle under a single
// advisory lock, so concurrent schedulers cannot run overlapping cycles.
type Orchestrator struct {
	store      LockStore
	osv        EcosystemSyncer
	nvd        SourceSyncer
	notifier   Notifier
	ecosystems []string
}

func New(s LockStore, osv EcosystemSyncer, nvd SourceSyncer, notifier Notifier, ecosystems []string) *Orchestrator {
	return &Orchestrator{
		store:      s,
		osv:        osv,
		nvd:        nvd,
		notifier:   notifier,
		ecosystems: ecosystems,
	}
}

// RunFullCycle runs every configured OSV ecosystem and then the NVD source,
// sequentially. One source's failure never stops the others; failures are
// collected and reported to operators at the end. The cycle itself always
// returns nil once it got to run — per-source errors are already recorded in
// sync_status rows and surfaced via notifications. The only error returns
// are lock acquisition problems.
func (o *Orchestrator) RunFullCycle(ctx context.Context) error {
	lock, acquired, err := o.store.TryAcquireSyncLock(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	if !acquired {
		slog.Info("sync cycle already running elsewhere, skipping")
		return nil
	}
	defer lock.Release()

	start := time.Now()
	var failures []string

	for _, eco := range o.ecosystems {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.osv.Sync(ctx, eco); err != nil {
			slog.Error("osv sync failed", "ecosystem", eco, "error", err)
			failures = append(failures, fmt.Sprintf("osv:%s: %v", eco, err))
		}
	}

	if err := o.nvd.Sync(ctx); err != nil {
		slog.Error("nvd sync failed", "error", err)
		failures = append(failures, fmt.Sprintf("nvd: %v", err))
	}

	elapsed := time.Since(start).Round(time.Second)
	if len(failures) > 0 {
		o.notifyFailures(ctx, failures, elapsed)
	}
	slog.Info("sync cycle finished",
		"sources", len(o.ecosystems)+1, "failures", len(failures), "duration", elapsed)
	return nil
}

func (o *Orchestrator) notifyFailures(ctx context.Context, failures []string, elapsed time.Duration) {
	if o.notifier == nil {
		return
	}
	subject := fmt.Sprintf("vulnsync: %d source(s) failed", len(failures))
	var b strings.Builder
	fmt.Fprintf(&b, "Sync cycle completed in %s with failures:\n\n", elapsed)
	for _, f := range failures {
		fmt.Fprintf(&b, "  - %s\n", f)
	}
	o.notifier.Notify(ctx, subject, b.String())
}
