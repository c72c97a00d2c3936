package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// SMSConfig configures the Twilio SMS channel.
type SMSConfig struct {
	// To is the destination number in E.164 form, e.g. +13055551234.
	To         string
	AccountSID string
	AuthToken  string
	From       string
	// BaseURL overrides the Twilio API endpoint (tests).
	BaseURL string
}

// SMSFromEnv builds an SMS config from the conventional environment
// variables: TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_PHONE_NUMBER.
func SMSFromEnv(to string) (SMSConfig, error) {
	cfg := SMSConfig{
		To:         to,
		AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		From:       os.Getenv("TWILIO_PHONE_NUMBER"),
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return cfg, fmt.Errorf("notify: sms: set TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_PHONE_NUMBER")
	}
	return cfg, nil
}

// SMS sends alerts through Twilio's Messages endpoint.
type SMS struct {
	cfg    SMSConfig
	client *http.Client
	log    *slog.Logger
}

// NewSMS creates the SMS channel.
func NewSMS(cfg SMSConfig, log *slog.Logger) *SMS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	if log == nil {
		log = slog.Default()
	}
	return &SMS{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
}

func (s *SMS) Name() string { return "sms" }

// Send posts the alert text as one message.
func (s *SMS) Send(ctx context.Context, a Alert) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		s.cfg.BaseURL, s.cfg.AccountSID)

	form := url.Values{
		"To":   {s.cfg.To},
		"From": {s.cfg.From},
		"Body": {a.Text()},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("notify: sms request: %w", err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: sms send: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: sms send: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var result struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(body, &result); err == nil && result.SID != "" {
		s.log.Info("sms delivered", "to", s.cfg.To, "sid", result.SID)
	}
	return nil
}
