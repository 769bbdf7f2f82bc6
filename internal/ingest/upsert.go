// ABOUTME: Batching upserters that buffer advisory/CVE rows and flush in fixed-size batches.
// ABOUTME: A failed batch is dropped and counted; later batches still proceed.
package ingest

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mcburnia/CRANIS2-sub001/internal/feed"
	"github.com/mcburnia/CRANIS2-sub001/internal/metrics"
)

// BatchSize is the fixed number of rows per upsert statement.
const BatchSize = 500

// AdvisoryWriter is the store surface the advisory upserter needs.
type AdvisoryWriter interface {
	UpsertAdvisories(ctx context.Context, rows []feed.Advisory, batchID uuid.UUID, contentHash func(feed.Advisory) string) error
}

// CVEWriter is the store surface the CVE upserter needs.
type CVEWriter interface {
	UpsertCVEs(ctx context.Context, rows []feed.CVERecord, batchID uuid.UUID, contentHash func(feed.CVERecord) string) error
}

// AdvisoryUpserter accumulates advisory rows and flushes them in fixed-size
// deduplicated batches tagged with one run's batch id. A failed batch is
// logged, counted, and dropped; the run continues with the next batch.
type AdvisoryUpserter struct {
	store   AdvisoryWriter
	batchID uuid.UUID
	pending []feed.Advisory

	// Written and Dropped count rows across the upserter's lifetime.
	Written int64
	Dropped int64
}

// NewAdvisoryUpserter creates an upserter for one sync run.
func NewAdvisoryUpserter(s AdvisoryWriter, batchID uuid.UUID) *AdvisoryUpserter {
	return &AdvisoryUpserter{store: s, batchID: batchID}
}

// Add queues rows, flushing whenever a full batch accumulates.
func (u *AdvisoryUpserter) Add(ctx context.Context, rows ...feed.Advisory) error {
	u.pending = append(u.pending, rows...)
	for len(u.pending) >= BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		u.flush(ctx, u.pending[:BatchSize])
		u.pending = u.pending[BatchSize:]
	}
	return nil
}

// Flush writes any remaining partial batch. Call once at end of run.
func (u *AdvisoryUpserter) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(u.pending) > 0 {
		u.flush(ctx, u.pending)
		u.pending = nil
	}
	return nil
}

func (u *AdvisoryUpserter) flush(ctx context.Context, batch []feed.Advisory) {
	deduped := DedupeAdvisories(batch)
	if err := u.store.UpsertAdvisories(ctx, deduped, u.batchID, AdvisoryContentHash); err != nil {
		// Drop the batch rather than aborting a multi-thousand-row sync.
		slog.Warn("advisory batch dropped",
			"batch_id", u.batchID, "rows", len(deduped), "error", err)
		metrics.BatchesDropped.WithLabelValues("advisories").Inc()
		u.Dropped += int64(len(deduped))
		return
	}
	metrics.RowsUpserted.WithLabelValues("advisories").Add(float64(len(deduped)))
	u.Written += int64(len(deduped))
}

// CVEUpserter is the CVE-record counterpart of AdvisoryUpserter.
type CVEUpserter struct {
	store   CVEWriter
	batchID uuid.UUID
	pending []feed.CVERecord

	Written int64
	Dropped int64

	// TouchedIDs records every CVE id queued this run, in first-seen order.
	// The NVD incremental path uses it to refresh only those CVEs' index rows.
	TouchedIDs []string
	touched    map[string]struct{}
}

// NewCVEUpserter creates an upserter for one sync run.
func NewCVEUpserter(s CVEWriter, batchID uuid.UUID) *CVEUpserter {
	return &CVEUpserter{store: s, batchID: batchID, touched: make(map[string]struct{})}
}

// Add queues rows, flushing whenever a full batch accumulates.
func (u *CVEUpserter) Add(ctx context.Context, rows ...feed.CVERecord) error {
	for _, row := range rows {
		if _, ok := u.touched[row.CVEID]; !ok {
			u.touched[row.CVEID] = struct{}{}
			u.TouchedIDs = append(u.TouchedIDs, row.CVEID)
		}
	}
	u.pending = append(u.pending, rows...)
	for len(u.pending) >= BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		u.flush(ctx, u.pending[:BatchSize])
		u.pending = u.pending[BatchSize:]
	}
	return nil
}

// Flush writes any remaining partial batch. Call once at end of run.
func (u *CVEUpserter) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(u.pending) > 0 {
		u.flush(ctx, u.pending)
		u.pending = nil
	}
	return nil
}

func (u *CVEUpserter) flush(ctx context.Context, batch []feed.CVERecord) {
	deduped := DedupeCVEs(batch)
	if err := u.store.UpsertCVEs(ctx, deduped, u.batchID, CVEContentHash); err != nil {
		slog.Warn("cve batch dropped",
			"batch_id", u.batchID, "rows", len(deduped), "error", err)
		metrics.BatchesDropped.WithLabelValues("cves").Inc()
		u.Dropped += int64(len(deduped))
		return
	}
	metrics.RowsUpserted.WithLabelValues("cves").Add(float64(len(deduped)))
	u.Written += int64(len(deduped))
}
