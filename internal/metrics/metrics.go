// Package metrics defines the Prometheus collectors for the sync pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsUpserted counts rows written through the batch upsert path,
	// labelled by table ("advisories", "cves").
	RowsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vulnsync_rows_upserted_total",
		Help: "Rows written through the batch upsert path.",
	}, []string{"table"})

	// BatchesDropped counts batches discarded after a write failure.
	BatchesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vulnsync_batches_dropped_total",
		Help: "Upsert batches dropped after a write failure.",
	}, []string{"table"})

	// ParseFailures counts malformed feed items skipped during parsing,
	// labelled by source ("osv", "nvd").
	ParseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vulnsync_parse_failures_total",
		Help: "Malformed feed items skipped during parsing.",
	}, []string{"source"})

	// SyncRuns counts finished per-source sync runs by outcome.
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vulnsync_runs_total",
		Help: "Finished per-source sync runs by outcome.",
	}, []string{"source", "result"})

	// CPEIndexRows gauges the size of the derived CPE index after a rebuild.
	CPEIndexRows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vulnsync_cpe_index_rows",
		Help: "Row count of the derived CPE index after the last rebuild.",
	})
)
