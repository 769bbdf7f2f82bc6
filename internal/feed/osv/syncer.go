package osv

import (
	"archive/zip"
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mcburnia/CRANIS2-sub001/internal/feed"
	"github.com/mcburnia/CRANIS2-sub001/internal/ingest"
	"github.com/mcburnia/CRANIS2-sub001/internal/metrics"
	"github.com/mcburnia/CRANIS2-sub001/internal/store"
)

const (
	// fetchConcurrency bounds in-flight advisory fetches on the incremental path.
	fetchConcurrency = 10

	// parseErrorLogCap bounds verbose per-file parse logging per run.
	parseErrorLogCap = 5
)

// Store is the persistence surface the syncer drives.
type Store interface {
	GetSyncStatus(ctx context.Context, source string) (*store.SyncStatus, error)
	MarkSyncRunning(ctx context.Context, source string) error
	MarkSyncCompleted(ctx context.Context, source string, res store.SyncResult) error
	MarkSyncError(ctx context.Context, source, message string) error

	UpsertAdvisories(ctx context.Context, rows []feed.Advisory, batchID uuid.UUID, contentHash func(feed.Advisory) string) error
	RetagEcosystem(ctx context.Context, ecosystem string, batchID uuid.UUID) (int64, error)
	DeleteStaleAdvisories(ctx context.Context, ecosystem string, batchID uuid.UUID) (int64, error)
	CountAdvisories(ctx context.Context, ecosystem string) (rows, packages int64, err error)
}

// Config holds the syncer's tunables.
type Config struct {
	// BaseURL is the OSV bulk bucket root.
	BaseURL string
	// ScratchRoot is where per-run download directories are created.
	// Empty means os.TempDir().
	ScratchRoot string
	// FullSyncInterval is the staleness threshold forcing a full sync.
	FullSyncInterval time.Duration
}

// Syncer synchronizes one or more OSV ecosystems into the advisory store.
type Syncer struct {
	store   Store
	client  *http.Client
	cfg     Config
	limiter *rate.Limiter
}

// New creates a Syncer. Pass nil client to use http.DefaultClient.
func New(s Store, client *http.Client, cfg Config) *Syncer {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.FullSyncInterval <= 0 {
		cfg.FullSyncInterval = 7 * 24 * time.Hour
	}
	return &Syncer{
		store:  s,
		client: client,
		cfg:    cfg,
		// Politeness limit against the bulk bucket; individual advisory
		// fetches on the incremental path are already concurrency-bounded.
		limiter: rate.NewLimiter(rate.Every(time.Second), fetchConcurrency),
	}
}

// statusSource returns the sync_status row key for an ecosystem.
func statusSource(ecosystem string) string {
	return "osv:" + ecosystem
}

// Sync runs one sync for ecosystem, choosing full or incremental from the
// stored status row: full when no successful full sync exists or the last
// one is older than the configured interval. The status row is transitioned
// running → completed|error; the returned error mirrors the error state so
// the orchestrator can aggregate failures without re-reading the table.
func (s *Syncer) Sync(ctx context.Context, ecosystem string) error {
	source := statusSource(ecosystem)

	st, err := s.store.GetSyncStatus(ctx, source)
	if err != nil {
		return err
	}
	full := st == nil || st.LastFullSyncAt == nil ||
		time.Since(*st.LastFullSyncAt) >= s.cfg.FullSyncInterval

	if err := s.store.MarkSyncRunning(ctx, source); err != nil {
		return err
	}

	start := time.Now()
	batchID := uuid.New()
	var marker *time.Time

	var prior *time.Time
	if st != nil {
		prior = st.LastModifiedMarker
	}
	if full {
		slog.Info("osv full sync starting", "ecosystem", ecosystem, "batch_id", batchID)
		marker, err = s.fullSync(ctx, ecosystem, batchID)
	} else {
		slog.Info("osv incremental sync starting",
			"ecosystem", ecosystem, "batch_id", batchID, "watermark", prior)
		marker, err = s.incrementalSync(ctx, ecosystem, batchID, prior)
	}
	if err != nil {
		return s.failSync(ctx, source, fmt.Errorf("osv %s: %w", ecosystem, err))
	}

	advisories, packages, err := s.store.CountAdvisories(ctx, ecosystem)
	if err != nil {
		return s.failSync(ctx, source, fmt.Errorf("osv %s: count advisories: %w", ecosystem, err))
	}
	res := store.SyncResult{
		FullSync:      full,
		Marker:        marker,
		AdvisoryCount: advisories,
		PackageCount:  packages,
		Duration:      time.Since(start),
	}
	if err := s.store.MarkSyncCompleted(ctx, source, res); err != nil {
		return s.failSync(ctx, source, fmt.Errorf("osv %s: mark completed: %w", ecosystem, err))
	}

	metrics.SyncRuns.WithLabelValues(source, "completed").Inc()
	slog.Info("osv sync completed",
		"ecosystem", ecosystem, "full", full,
		"advisories", advisories, "packages", packages,
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// failSync records the failure on the status row so the state machine never
// strands in "running", then returns err unchanged. A failed MarkSyncError is
// only logged; the original error is the one worth reporting.
func (s *Syncer) failSync(ctx context.Context, source string, err error) error {
	metrics.SyncRuns.WithLabelValues(source, "error").Inc()
	if markErr := s.store.MarkSyncError(ctx, source, err.Error()); markErr != nil {
		slog.Error("mark sync error failed", "source", source, "error", markErr)
	}
	return err
}

// fullSync downloads the ecosystem's bulk archive, parses every contained
// advisory, upserts in batches, and sweeps rows not re-tagged with batchID.
// Returns the max modified timestamp observed (nil when nothing parsed).
func (s *Syncer) fullSync(ctx context.Context, ecosystem string, batchID uuid.UUID) (*time.Time, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp(s.cfg.ScratchRoot, "osv-"+sanitize(ecosystem)+"-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	// Unconditional removal bounds disk usage on every exit path.
	defer os.RemoveAll(scratch)

	archivePath := filepath.Join(scratch, "all.zip")
	archiveURL := s.cfg.BaseURL + "/" + url.PathEscape(ecosystem) + "/all.zip"
	if err := s.download(ctx, archiveURL, archivePath); err != nil {
		return nil, fmt.Errorf("download archive: %w", err)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	up := ingest.NewAdvisoryUpserter(s.store, batchID)
	var maxModified time.Time
	parseErrors := 0

	for _, entry := range zr.File {
		if !strings.HasSuffix(entry.Name, ".json") {
			continue
		}
		rows, err := parseEntry(entry)
		if err != nil {
			parseErrors++
			metrics.ParseFailures.WithLabelValues("osv").Inc()
			if parseErrors <= parseErrorLogCap {
				slog.Warn("skipping malformed advisory file",
					"ecosystem", ecosystem, "entry", entry.Name, "error", err)
			}
			continue
		}
		for _, row := range rows {
			if row.Modified != nil && row.Modified.After(maxModified) {
				maxModified = *row.Modified
			}
		}
		if err := up.Add(ctx, rows...); err != nil {
			return nil, err
		}
	}
	if err := up.Flush(ctx); err != nil {
		return nil, err
	}
	if parseErrors > parseErrorLogCap {
		slog.Warn("further malformed advisory files suppressed",
			"ecosystem", ecosystem, "total", parseErrors)
	}

	// The archive is the authoritative full set: anything it did not
	// re-tag no longer exists upstream.
	removed, err := s.store.DeleteStaleAdvisories(ctx, ecosystem, batchID)
	if err != nil {
		return nil, err
	}
	slog.Info("osv full sync swept stale rows",
		"ecosystem", ecosystem, "removed", removed,
		"written", up.Written, "dropped", up.Dropped)

	if maxModified.IsZero() {
		return nil, nil
	}
	return &maxModified, nil
}

// incrementalSync walks the modified-id change feed newest-first, stopping at
// the first entry at or before the watermark, fetches each changed advisory
// with bounded concurrency, upserts, and re-tags untouched rows so the next
// full sync's cleanup does not sweep them.
func (s *Syncer) incrementalSync(ctx context.Context, ecosystem string, batchID uuid.UUID, watermark *time.Time) (*time.Time, error) {
	ids, err := s.fetchModifiedIDs(ctx, ecosystem, watermark)
	if err != nil {
		return nil, fmt.Errorf("fetch change feed: %w", err)
	}
	slog.Info("osv change feed walked", "ecosystem", ecosystem, "changed", len(ids))

	var (
		mu   sync.Mutex
		rows []feed.Advisory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			parsed, err := s.fetchAdvisory(gctx, ecosystem, id)
			if err != nil {
				// Transient per-advisory failure: count and continue; the
				// advisory stays listed in the next run's change feed.
				metrics.ParseFailures.WithLabelValues("osv").Inc()
				slog.Warn("advisory fetch failed",
					"ecosystem", ecosystem, "id", id, "error", err)
				return nil
			}
			mu.Lock()
			rows = append(rows, parsed...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	up := ingest.NewAdvisoryUpserter(s.store, batchID)
	if err := up.Add(ctx, rows...); err != nil {
		return nil, err
	}
	if err := up.Flush(ctx); err != nil {
		return nil, err
	}

	// Untouched rows are known-good; re-tag them onto this batch.
	if _, err := s.store.RetagEcosystem(ctx, ecosystem, batchID); err != nil {
		return nil, err
	}

	var maxModified time.Time
	for _, row := range rows {
		if row.Modified != nil && row.Modified.After(maxModified) {
			maxModified = *row.Modified
		}
	}
	if maxModified.IsZero() {
		return watermark, nil
	}
	return &maxModified, nil
}

// fetchModifiedIDs reads the reverse-chronological change feed and returns
// the ids strictly newer than the watermark. The feed is sorted newest-first,
// so the walk stops at the first entry at or before the watermark.
func (s *Syncer) fetchModifiedIDs(ctx context.Context, ecosystem string, watermark *time.Time) ([]string, error) {
	feedURL := s.cfg.BaseURL + "/" + url.PathEscape(ecosystem) + "/modified_ids.csv"
	resp, err := s.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ids []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tsField, id, found := strings.Cut(line, ",")
		if !found {
			continue
		}
		ts := feed.ParseTime(tsField)
		if ts.IsZero() {
			continue
		}
		if watermark != nil && !ts.After(*watermark) {
			break
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// fetchAdvisory downloads and parses one advisory by id.
func (s *Syncer) fetchAdvisory(ctx context.Context, ecosystem, id string) ([]feed.Advisory, error) {
	advisoryURL := s.cfg.BaseURL + "/" + url.PathEscape(ecosystem) + "/" + url.PathEscape(id) + ".json"
	resp, err := s.get(ctx, advisoryURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return ParseAdvisory(resp.Body)
}

// get issues a GET and verifies a 200 response.
func (s *Syncer) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}
	return resp, nil
}

// download streams a GET response to path.
func (s *Syncer) download(ctx context.Context, rawURL, path string) error {
	resp, err := s.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("copy to %s: %w", path, err)
	}
	return f.Close()
}

// parseEntry opens a ZIP entry and parses it. Uses explicit rc.Close() —
// never defer inside a loop body (FD exhaustion).
func parseEntry(entry *zip.File) ([]feed.Advisory, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	rows, err := ParseAdvisory(rc)
	_ = rc.Close()
	return rows, err
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}
