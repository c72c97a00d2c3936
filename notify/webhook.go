package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reveller/deuker-monitor/docket"
)

// WebhookConfig configures the outbound webhook channel.
type WebhookConfig struct {
	URL string
	// Secret, when set, signs the body with HMAC-SHA256 in the
	// X-Signature-256 header ("sha256=" + hex), GitHub style.
	Secret  string
	Timeout time.Duration
}

// Webhook POSTs alerts as JSON to an external endpoint.
type Webhook struct {
	cfg    WebhookConfig
	client *http.Client
	log    *slog.Logger
}

// NewWebhook creates the webhook channel.
func NewWebhook(cfg WebhookConfig, log *slog.Logger) *Webhook {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Webhook{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

func (w *Webhook) Name() string { return "webhook" }

// webhookPayload is the wire form of an alert.
type webhookPayload struct {
	Defendant  string               `json:"defendant"`
	NewCharges []docket.Charge      `json:"new_charges"`
	NewDockets []docket.DocketEntry `json:"new_dockets"`
	Downloaded []string             `json:"downloaded"`
	Timestamp  string               `json:"timestamp"`
}

// Send posts the alert. Any non-2xx response is an error.
func (w *Webhook) Send(ctx context.Context, a Alert) error {
	payload := webhookPayload{
		Defendant:  a.Defendant,
		NewCharges: a.NewCharges,
		NewDockets: a.NewDockets,
		Downloaded: a.Downloaded,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: webhook marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.cfg.Secret != "" {
		req.Header.Set("X-Signature-256", "sha256="+signBody(w.cfg.Secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook post: %s", resp.Status)
	}
	w.log.Debug("webhook delivered", "url", w.cfg.URL, "status", resp.StatusCode)
	return nil
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
