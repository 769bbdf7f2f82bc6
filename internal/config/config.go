// Package config parses and validates all application configuration from
// environment variables using caarlos0/env/v11.
//
// Call [Load] once at startup; pass the resulting [Config] to subcommands.
// The process exits if any field tagged "required" is missing.
package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration sourced from environment variables.
type Config struct {
	// ── Database ─────────────────────────────────────────────────────────────────
	DatabaseURL       string        `env:"DATABASE_URL,required"`
	DBMaxConns        int32         `env:"DB_MAX_CONNS"          envDefault:"10"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`

	// ── Graph store (dependency nodes) ───────────────────────────────────────────
	Neo4jURI      string `env:"NEO4J_URI"      envDefault:"bolt://localhost:7687"`
	Neo4jUser     string `env:"NEO4J_USER"     envDefault:"neo4j"`
	Neo4jPassword string `env:"NEO4J_PASSWORD"`
	Neo4jDatabase string `env:"NEO4J_DATABASE" envDefault:"neo4j"`

	// ── Feeds ────────────────────────────────────────────────────────────────────
	// OSVBaseURL is the per-ecosystem bulk bucket. Archives live at
	// <base>/<ecosystem>/all.zip and change feeds at <base>/<ecosystem>/modified_ids.csv.
	OSVBaseURL string `env:"OSV_BASE_URL" envDefault:"https://osv-vulnerabilities.storage.googleapis.com"`
	// OSVEcosystems is the comma-separated list of ecosystems to sync.
	OSVEcosystems string `env:"OSV_ECOSYSTEMS" envDefault:"npm,PyPI,Go,Maven,crates.io,RubyGems,Packagist,NuGet"`

	// NVDFeedBaseURL hosts the XZ-compressed yearly and delta feeds
	// (CVE-<year>.json.xz, CVE-Modified.json.xz, CVE-Recent.json.xz).
	NVDFeedBaseURL string `env:"NVD_FEED_BASE_URL" envDefault:"https://github.com/fkie-cad/nvd-json-data-feeds/releases/latest/download"`
	NVDFirstYear   int    `env:"NVD_FIRST_YEAR"    envDefault:"2020"`
	NVDLastYear    int    `env:"NVD_LAST_YEAR"     envDefault:"2026"`

	// FullSyncInterval is the staleness threshold after which a full sync
	// replaces the incremental path.
	FullSyncInterval time.Duration `env:"FULL_SYNC_INTERVAL" envDefault:"168h"`

	// ScratchDir is the root under which each sync run creates (and removes)
	// its own temporary download directory. Empty means os.TempDir().
	ScratchDir string `env:"SCRATCH_DIR"`

	// ── Registries (hash enrichment) ─────────────────────────────────────────────
	NPMRegistryURL  string `env:"NPM_REGISTRY_URL"  envDefault:"https://registry.npmjs.org"`
	PyPIRegistryURL string `env:"PYPI_REGISTRY_URL" envDefault:"https://pypi.org/pypi"`

	// ── Notifications ────────────────────────────────────────────────────────────
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"vulnsync@localhost"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPTLS      bool   `env:"SMTP_TLS" envDefault:"true"`
	// AdminEmails receives the aggregated failure notification after a sync
	// cycle with errors. Comma-separated.
	AdminEmails string `env:"ADMIN_EMAILS"`
	// NotifyWebhookURL, when set, receives the same failure summary as JSON.
	NotifyWebhookURL    string `env:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookSecret string `env:"NOTIFY_WEBHOOK_SECRET"`

	// ── Metrics ──────────────────────────────────────────────────────────────────
	MetricsListenAddr string `env:"METRICS_LISTEN_ADDR"`

	// ── Logging ──────────────────────────────────────────────────────────────────
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses and returns Config from environment variables.
// Returns an error if any required field is missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Ecosystems returns the configured OSV ecosystem list, trimmed, empties dropped.
func (c *Config) Ecosystems() []string {
	return splitList(c.OSVEcosystems)
}

// AdminRecipients returns the parsed ADMIN_EMAILS list.
func (c *Config) AdminRecipients() []string {
	return splitList(c.AdminEmails)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
