// ABOUTME: Operator alert fan-out: email to platform administrators plus an
// ABOUTME: optional webhook. Delivery failures are logged, never propagated.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// Config wires the delivery channels. Any channel left unconfigured is
// skipped; with no channel configured alerts land in the log only.
type Config struct {
	SMTP          SMTPConfig
	Recipients    []string
	WebhookURL    string
	WebhookSecret string
}

// Notifier delivers operator alerts over every configured channel.
type Notifier struct {
	cfg    Config
	client *http.Client
}

// New builds a Notifier. The webhook client is SSRF-safe with redirect
// following disabled and a 10 second timeout.
func New(cfg Config) *Notifier {
	safeCfg := safeurl.GetConfigBuilder().
		SetTimeout(10 * time.Second).
		SetCheckRedirect(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}).
		Build()
	return &Notifier{cfg: cfg, client: safeurl.Client(safeCfg).Client}
}

// Notify fans the alert out to email and webhook. Each channel's failure is
// logged at error level and otherwise swallowed; an alerting path that can
// itself fail a sync run would defeat its purpose.
func (n *Notifier) Notify(ctx context.Context, subject, body string) {
	delivered := false

	if n.cfg.SMTP.Host != "" && len(n.cfg.Recipients) > 0 {
		if err := sendEmail(ctx, n.cfg.SMTP, n.cfg.Recipients, subject, body); err != nil {
			slog.Error("alert email delivery failed", "error", err)
		} else {
			delivered = true
		}
	}

	if n.cfg.WebhookURL != "" {
		payload, err := json.Marshal(map[string]string{
			"subject":   subject,
			"body":      body,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		if err == nil {
			err = sendWebhook(ctx, n.client, n.cfg.WebhookURL, n.cfg.WebhookSecret, payload)
		}
		if err != nil {
			slog.Error("alert webhook delivery failed", "error", err)
		} else {
			delivered = true
		}
	}

	if !delivered {
		slog.Warn("operator alert", "subject", subject, "body", body)
	}
}
