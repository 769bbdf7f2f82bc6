// Command vulnsync drives the vulnerability intelligence pipeline.
//
// Subcommands:
//
//	sync     — run one full sync cycle across all configured sources
//	stats    — print per-source sync state and dataset counts
//	enrich   — fetch registry hashes for one product's dependencies
//	migrate  — run pending database migrations and exit
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Embeds the IANA timezone database in the binary so that
	// time.LoadLocation works inside distroless containers that have no
	// /usr/share/zoneinfo.
	_ "time/tzdata"

	// Automatically sets GOMEMLIMIT from the cgroup memory limit so that
	// the Go GC triggers before the OOM killer fires in containers.
	_ "github.com/KimMachineGun/automemlimit"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mcburnia/CRANIS2-sub001/internal/config"
	"github.com/mcburnia/CRANIS2-sub001/internal/enrich"
	"github.com/mcburnia/CRANIS2-sub001/internal/feed/nvd"
	"github.com/mcburnia/CRANIS2-sub001/internal/feed/osv"
	"github.com/mcburnia/CRANIS2-sub001/internal/graph"
	"github.com/mcburnia/CRANIS2-sub001/internal/notify"
	"github.com/mcburnia/CRANIS2-sub001/internal/orchestrator"
	"github.com/mcburnia/CRANIS2-sub001/internal/store"
	"github.com/mcburnia/CRANIS2-sub001/internal/worker"
	"github.com/mcburnia/CRANIS2-sub001/migrations"
)

func main() {
	root := &cobra.Command{
		Use:   "vulnsync",
		Short: "vulnsync — vulnerability feed synchronization and enrichment",
		// Silence default error printing; we print it ourselves with slog.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(
		syncCmd(),
		statsCmd(),
		enrichCmd(),
		migrateCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// ── sync ──────────────────────────────────────────────────────────────────────

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle: every configured OSV ecosystem, then NVD",
		RunE:  runSync,
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(newLogger(cfg))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := newPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if cfg.MetricsListenAddr != "" {
		go serveMetrics(cfg.MetricsListenAddr)
	}

	// The cycle is fire-and-forget toward whatever triggers it: source
	// failures are recorded on the status rows and notified, never returned.
	// The CLI runs it through the same background runner a service trigger
	// would use and waits so the process exits when the cycle ends.
	orch := buildOrchestrator(cfg, store.New(db))
	runner := worker.New(ctx)
	runner.Go("sync-cycle", orch.RunFullCycle)
	runner.Wait()
	return nil
}

// buildOrchestrator wires the per-source syncers and the notifier.
func buildOrchestrator(cfg *config.Config, st *store.Store) *orchestrator.Orchestrator {
	osvSyncer := osv.New(st, nil, osv.Config{
		BaseURL:          cfg.OSVBaseURL,
		ScratchRoot:      cfg.ScratchDir,
		FullSyncInterval: cfg.FullSyncInterval,
	})
	nvdSyncer := nvd.New(st, nil, nvd.Config{
		BaseURL:          cfg.NVDFeedBaseURL,
		FirstYear:        cfg.NVDFirstYear,
		LastYear:         cfg.NVDLastYear,
		ScratchRoot:      cfg.ScratchDir,
		FullSyncInterval: cfg.FullSyncInterval,
	})
	notifier := notify.New(notify.Config{
		SMTP: notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			TLS:      cfg.SMTPTLS,
		},
		Recipients:    cfg.AdminRecipients(),
		WebhookURL:    cfg.NotifyWebhookURL,
		WebhookSecret: cfg.NotifyWebhookSecret,
	})
	return orchestrator.New(st, osvSyncer, nvdSyncer, notifier, cfg.Ecosystems())
}

// ── stats ─────────────────────────────────────────────────────────────────────

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print per-source sync state and dataset counts",
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(newLogger(cfg))

	db, err := newPool(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	st := store.New(db)
	stats, err := buildOrchestrator(cfg, st).CollectStats(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-24s %-10s %-22s %s\n", "SOURCE", "STATUS", "LAST SYNC", "ADVISORIES")
	for _, src := range stats.Sources {
		last := "never"
		if src.LastSyncAt != nil {
			last = src.LastSyncAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(out, "%-24s %-10s %-22s %d\n",
			src.Source, src.Status, last, src.AdvisoryCount)
	}
	fmt.Fprintln(out)
	for _, eco := range stats.Advisories {
		fmt.Fprintf(out, "%-24s %d advisories across %d packages\n",
			eco.Ecosystem, eco.Rows, eco.Packages)
	}
	fmt.Fprintf(out, "%-24s %d\n", "nvd cves", stats.CVEs)
	fmt.Fprintf(out, "%-24s %d\n", "cpe index rows", stats.CPERows)
	return nil
}

// ── enrich ────────────────────────────────────────────────────────────────────

func enrichCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enrich <product-id>",
		Short: "Fetch registry hashes for one product's dependency nodes",
		Args:  cobra.ExactArgs(1),
		RunE:  runEnrich,
	}
}

func runEnrich(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(newLogger(cfg))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	gs, err := graph.NewStore(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
	if err != nil {
		return fmt.Errorf("graph store: %w", err)
	}
	defer gs.Close(ctx) //nolint:errcheck

	svc := enrich.New(gs, nil, enrich.Config{
		NPMRegistryURL:  cfg.NPMRegistryURL,
		PyPIRegistryURL: cfg.PyPIRegistryURL,
	})
	res := svc.EnrichProduct(ctx, args[0])
	fmt.Fprintf(cmd.OutOrStdout(), "enriched=%d skipped=%d failed=%d\n",
		res.Enriched, res.Skipped, res.Failed)
	return nil
}

// ── migrate ───────────────────────────────────────────────────────────────────

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run pending database migrations and exit",
		RunE:  runMigrate,
	}
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(newLogger(cfg))
	slog.Info("running migrations")

	// Source: embedded SQL files from the migrations package.
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	// golang-migrate requires a *sql.DB. Use pgx's stdlib adapter so the
	// same driver is used project-wide. No pooling needed here — this is a
	// one-shot migration run.
	connCfg, err := pgx.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse db url: %w", err)
	}
	db := stdlib.OpenDB(*connCfg)
	defer db.Close() //nolint:errcheck

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	version, _, _ := m.Version() //nolint:errcheck
	slog.Info("migrations complete", "version", version)
	return nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

// newPool creates and validates a pgxpool. Retries up to 10 times with
// linear backoff to handle compose startup races where Postgres is not
// immediately ready.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MaxConnIdleTime = cfg.DBMaxConnIdleTime

	var (
		db      *pgxpool.Pool
		connErr error
	)
	for attempt := 1; attempt <= 10; attempt++ {
		db, connErr = pgxpool.NewWithConfig(ctx, poolCfg)
		if connErr == nil {
			if connErr = db.Ping(ctx); connErr == nil {
				break
			}
			db.Close()
		}
		slog.Warn("database not ready, retrying", "attempt", attempt, "error", connErr)
		// time.NewTimer (not time.After) to avoid leaking the timer if ctx
		// is cancelled before the timer fires.
		timer := time.NewTimer(time.Duration(attempt) * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if connErr != nil {
		return nil, fmt.Errorf("database unavailable after retries: %w", connErr)
	}
	return db, nil
}

// serveMetrics exposes prometheus metrics for the duration of the run.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics listener failed", "error", err)
	}
}

// newLogger creates a slog.Logger based on the configured log level and format.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
