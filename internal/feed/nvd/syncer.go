package nvd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ulikunitz/xz"
	"golang.org/x/time/rate"

	"github.com/mcburnia/CRANIS2-sub001/internal/feed"
	"github.com/mcburnia/CRANIS2-sub001/internal/ingest"
	"github.com/mcburnia/CRANIS2-sub001/internal/metrics"
	"github.com/mcburnia/CRANIS2-sub001/internal/store"
)

// SourceName is the sync_status row key for the NVD source as a whole.
const SourceName = "nvd"

// Store is the persistence surface the syncer drives.
type Store interface {
	ingest.CPEIndexStore

	GetSyncStatus(ctx context.Context, source string) (*store.SyncStatus, error)
	MarkSyncRunning(ctx context.Context, source string) error
	MarkSyncCompleted(ctx context.Context, source string, res store.SyncResult) error
	MarkSyncError(ctx context.Context, source, message string) error

	UpsertCVEs(ctx context.Context, rows []feed.CVERecord, batchID uuid.UUID, contentHash func(feed.CVERecord) string) error
	RetagCVEs(ctx context.Context, batchID uuid.UUID) (int64, error)
	DeleteStaleCVEs(ctx context.Context, batchID uuid.UUID) (int64, error)
	CountCVEs(ctx context.Context) (int64, error)
}

// Config holds the syncer's tunables.
type Config struct {
	// BaseURL hosts CVE-<year>.json.xz, CVE-Modified.json.xz and
	// CVE-Recent.json.xz.
	BaseURL string
	// FirstYear..LastYear is the inclusive yearly feed range for full syncs.
	FirstYear int
	LastYear  int
	// ScratchRoot is where per-run download directories are created.
	ScratchRoot string
	// FullSyncInterval is the staleness threshold forcing a full sync.
	FullSyncInterval time.Duration
}

// Syncer synchronizes the NVD feeds into the CVE store and maintains the
// derived CPE index.
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
	if cfg.FirstYear == 0 {
		cfg.FirstYear = 2020
	}
	if cfg.LastYear == 0 {
		cfg.LastYear = time.Now().UTC().Year()
	}
	return &Syncer{
		store:   s,
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// Sync runs one NVD sync, full or incremental per the 7-day rule applied to
// the "nvd" source as a whole (not per year). Status transitions and error
// reporting mirror the OSV syncer.
func (s *Syncer) Sync(ctx context.Context) error {
	st, err := s.store.GetSyncStatus(ctx, SourceName)
	if err != nil {
		return err
	}
	full := st == nil || st.LastFullSyncAt == nil ||
		time.Since(*st.LastFullSyncAt) >= s.cfg.FullSyncInterval

	if err := s.store.MarkSyncRunning(ctx, SourceName); err != nil {
		return err
	}

	start := time.Now()
	batchID := uuid.New()
	var marker *time.Time

	if full {
		slog.Info("nvd full sync starting",
			"batch_id", batchID, "years", fmt.Sprintf("%d-%d", s.cfg.FirstYear, s.cfg.LastYear))
		marker, err = s.fullSync(ctx, batchID)
	} else {
		slog.Info("nvd incremental sync starting", "batch_id", batchID)
		marker, err = s.incrementalSync(ctx, batchID)
	}
	if err != nil {
		return s.failSync(ctx, fmt.Errorf("nvd: %w", err))
	}

	count, err := s.store.CountCVEs(ctx)
	if err != nil {
		return s.failSync(ctx, fmt.Errorf("nvd: count cves: %w", err))
	}
	res := store.SyncResult{
		FullSync:      full,
		Marker:        marker,
		AdvisoryCount: count,
		Duration:      time.Since(start),
	}
	if err := s.store.MarkSyncCompleted(ctx, SourceName, res); err != nil {
		return s.failSync(ctx, fmt.Errorf("nvd: mark completed: %w", err))
	}

	metrics.SyncRuns.WithLabelValues(SourceName, "completed").Inc()
	slog.Info("nvd sync completed", "full", full, "cves", count,
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// failSync records the failure on the status row so the state machine never
// strands in "running", then returns err unchanged.
func (s *Syncer) failSync(ctx context.Context, err error) error {
	metrics.SyncRuns.WithLabelValues(SourceName, "error").Inc()
	if markErr := s.store.MarkSyncError(ctx, SourceName, err.Error()); markErr != nil {
		slog.Error("mark sync error failed", "source", SourceName, "error", markErr)
	}
	return err
}

// fullSync processes every configured yearly feed sequentially. A single
// year's failure is logged and the loop proceeds; the run fails only when no
// year could be processed at all. Afterwards stale rows are swept run-wide
// and the CPE index is rebuilt from scratch.
func (s *Syncer) fullSync(ctx context.Context, batchID uuid.UUID) (*time.Time, error) {
	scratch, err := os.MkdirTemp(s.cfg.ScratchRoot, "nvd-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	up := ingest.NewCVEUpserter(s.store, batchID)
	var maxModified time.Time
	succeeded := 0

	for year := s.cfg.FirstYear; year <= s.cfg.LastYear; year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("CVE-%d.json.xz", year)
		if err := s.syncFeed(ctx, scratch, name, up, &maxModified); err != nil {
			slog.Warn("nvd year feed failed, continuing", "feed", name, "error", err)
			continue
		}
		succeeded++
	}
	if succeeded == 0 {
		return nil, fmt.Errorf("all yearly feeds failed")
	}
	if err := up.Flush(ctx); err != nil {
		return nil, err
	}

	removed, err := s.store.DeleteStaleCVEs(ctx, batchID)
	if err != nil {
		return nil, err
	}
	slog.Info("nvd full sync swept stale rows",
		"removed", removed, "written", up.Written, "dropped", up.Dropped)

	if err := ingest.RebuildCPEIndex(ctx, s.store); err != nil {
		return nil, fmt.Errorf("rebuild cpe index: %w", err)
	}

	if maxModified.IsZero() {
		return nil, nil
	}
	return &maxModified, nil
}

// incrementalSync processes only the Modified and Recent delta feeds, then
// re-tags untouched rows and refreshes the CPE index entries of the CVEs
// this run delivered so they are matchable before the next full rebuild.
func (s *Syncer) incrementalSync(ctx context.Context, batchID uuid.UUID) (*time.Time, error) {
	scratch, err := os.MkdirTemp(s.cfg.ScratchRoot, "nvd-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	up := ingest.NewCVEUpserter(s.store, batchID)
	var maxModified time.Time

	for _, name := range []string{"CVE-Modified.json.xz", "CVE-Recent.json.xz"} {
		if err := s.syncFeed(ctx, scratch, name, up, &maxModified); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	if err := up.Flush(ctx); err != nil {
		return nil, err
	}

	if _, err := s.store.RetagCVEs(ctx, batchID); err != nil {
		return nil, err
	}
	if err := ingest.RefreshCPEIndexFor(ctx, s.store, up.TouchedIDs); err != nil {
		return nil, fmt.Errorf("refresh cpe index: %w", err)
	}
	slog.Info("nvd incremental sync finished",
		"touched", len(up.TouchedIDs), "written", up.Written, "dropped", up.Dropped)

	if maxModified.IsZero() {
		return nil, nil
	}
	return &maxModified, nil
}

// syncFeed downloads one compressed feed into the scratch dir, parses it
// through the upserter, and removes the file immediately afterwards so peak
// disk usage stays bounded at roughly one compressed feed.
func (s *Syncer) syncFeed(ctx context.Context, scratch, name string, up *ingest.CVEUpserter, maxModified *time.Time) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	path := filepath.Join(scratch, name)
	if err := s.download(ctx, s.cfg.BaseURL+"/"+name, path); err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	xzr, err := xz.NewReader(f)
	if err != nil {
		return fmt.Errorf("open xz stream: %w", err)
	}

	var addErr error
	skipped, err := ParseFeed(xzr, func(rec feed.CVERecord) {
		if addErr != nil {
			return
		}
		if rec.Modified != nil && rec.Modified.After(*maxModified) {
			*maxModified = *rec.Modified
		}
		addErr = up.Add(ctx, rec)
	})
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if addErr != nil {
		return addErr
	}
	if skipped > 0 {
		metrics.ParseFailures.WithLabelValues("nvd").Add(float64(skipped))
		slog.Debug("nvd feed entries skipped", "feed", name, "skipped", skipped)
	}
	return nil
}

// download streams a GET response to path.
func (s *Syncer) download(ctx context.Context, rawURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

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
