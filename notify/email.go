package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"os"
	"strconv"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/microcosm-cc/bluemonday"

	"github.com/reveller/deuker-monitor/docket"
)

// EmailConfig configures the SMTP email channel.
type EmailConfig struct {
	To       string
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailFromEnv builds an email config from the conventional environment
// variables: EMAIL_SMTP_SERVER, EMAIL_SMTP_PORT (default 587),
// EMAIL_USERNAME, EMAIL_PASSWORD, EMAIL_FROM_ADDRESS (default username).
func EmailFromEnv(to string) (EmailConfig, error) {
	cfg := EmailConfig{
		To:       to,
		Host:     os.Getenv("EMAIL_SMTP_SERVER"),
		Port:     587,
		Username: os.Getenv("EMAIL_USERNAME"),
		Password: os.Getenv("EMAIL_PASSWORD"),
		From:     os.Getenv("EMAIL_FROM_ADDRESS"),
	}
	if p := os.Getenv("EMAIL_SMTP_PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return cfg, fmt.Errorf("notify: email: EMAIL_SMTP_PORT: %w", err)
		}
		cfg.Port = port
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Host == "" || cfg.Username == "" || cfg.Password == "" {
		return cfg, fmt.Errorf("notify: email: set EMAIL_SMTP_SERVER, EMAIL_USERNAME, EMAIL_PASSWORD")
	}
	return cfg, nil
}

// Email sends alerts as multipart text+HTML mail over SMTP.
type Email struct {
	cfg EmailConfig
	log *slog.Logger
	// sanitize strips markup from portal-derived strings before they are
	// embedded in the HTML body. Docket descriptions come straight from
	// scraped cells and are not trusted.
	sanitize *bluemonday.Policy
}

// NewEmail creates the email channel.
func NewEmail(cfg EmailConfig, log *slog.Logger) *Email {
	if log == nil {
		log = slog.Default()
	}
	return &Email{cfg: cfg, log: log, sanitize: bluemonday.StrictPolicy()}
}

func (e *Email) Name() string { return "email" }

// Send delivers the alert. The underlying SMTP client has no context
// support; cancellation is checked before dialing.
func (e *Email) Send(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := email.NewEmail()
	m.From = e.cfg.From
	m.To = []string{e.cfg.To}
	m.Subject = a.Subject()
	m.Text = []byte(a.Text())
	m.HTML = []byte(e.htmlBody(a))

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	if err := m.Send(addr, auth); err != nil {
		return fmt.Errorf("notify: email send: %w", err)
	}
	e.log.Info("email delivered", "to", e.cfg.To)
	return nil
}

// htmlBody renders the alert's HTML part: a header block, then one section
// per category with entries grouped by case.
func (e *Email) htmlBody(a Alert) string {
	var b strings.Builder
	b.WriteString(`<html><body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">`)
	fmt.Fprintf(&b,
		`<div style="background-color: #f44336; color: white; padding: 15px;">`+
			`<h2 style="margin: 0;">Court Alert</h2><p style="margin: 5px 0 0 0;">%s</p></div>`,
		e.sanitize.Sanitize(a.Defendant))
	b.WriteString(`<div style="padding: 20px; background-color: #f5f5f5;">`)

	if len(a.NewCharges) > 0 {
		fmt.Fprintf(&b, `<h3 style="color: #ff9800;">%d new charge(s)</h3>`, len(a.NewCharges))
		for caseNumber, charges := range groupCharges(a.NewCharges) {
			fmt.Fprintf(&b, `<h4 style="color: #666;">Case: %s</h4><ul>`, e.sanitize.Sanitize(caseNumber))
			for _, c := range charges {
				fmt.Fprintf(&b, `<li>%s (%s)</li>`,
					e.sanitize.Sanitize(c.ChargeDescription), e.sanitize.Sanitize(c.ChargeType))
			}
			b.WriteString(`</ul>`)
		}
	}

	if len(a.NewDockets) > 0 {
		fmt.Fprintf(&b, `<h3 style="color: #2196f3;">%d new docket entry(ies)</h3>`, len(a.NewDockets))
		for caseNumber, dockets := range groupDockets(a.NewDockets) {
			fmt.Fprintf(&b, `<h4 style="color: #666;">Case: %s</h4><ul>`, e.sanitize.Sanitize(caseNumber))
			for _, d := range dockets {
				fmt.Fprintf(&b, `<li>Din %s (%s): %s</li>`,
					e.sanitize.Sanitize(d.DIN), e.sanitize.Sanitize(d.Date),
					e.sanitize.Sanitize(d.DocketDescription))
			}
			b.WriteString(`</ul>`)
		}
	}

	if len(a.Downloaded) > 0 {
		fmt.Fprintf(&b, `<h3 style="color: #4caf50;">%d document(s) downloaded</h3><ul>`, len(a.Downloaded))
		for _, f := range a.Downloaded {
			fmt.Fprintf(&b, `<li>%s</li>`, e.sanitize.Sanitize(f))
		}
		b.WriteString(`</ul>`)
	}

	b.WriteString(`</div></body></html>`)
	return b.String()
}

func groupCharges(charges []docket.Charge) map[string][]docket.Charge {
	m := map[string][]docket.Charge{}
	for _, c := range charges {
		m[c.CaseNumber] = append(m[c.CaseNumber], c)
	}
	return m
}

func groupDockets(dockets []docket.DocketEntry) map[string][]docket.DocketEntry {
	m := map[string][]docket.DocketEntry{}
	for _, d := range dockets {
		m[d.CaseNumber] = append(m[d.CaseNumber], d)
	}
	return m
}
