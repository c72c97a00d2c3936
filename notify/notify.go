// Package notify delivers change alerts over the configured channels:
// SMS, email, and generic webhooks. Delivery is best-effort per channel;
// one channel failing never blocks the others, and the cycle that produced
// the alert has already persisted its state either way.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reveller/deuker-monitor/docket"
)

// Alert is one cycle's worth of news about a defendant.
type Alert struct {
	Defendant  string
	NewCharges []docket.Charge
	NewDockets []docket.DocketEntry
	// Downloaded lists filenames of documents retrieved this cycle.
	Downloaded []string
}

// Empty reports whether the alert carries nothing worth sending.
func (a Alert) Empty() bool {
	return len(a.NewCharges) == 0 && len(a.NewDockets) == 0 && len(a.Downloaded) == 0
}

// Subject is the one-line summary used as email subject.
func (a Alert) Subject() string {
	return "Court Alert: " + a.Defendant
}

// smsItemLimit caps per-section detail lines; SMS bodies have to stay
// within a handful of segments.
const smsItemLimit = 3

// Text renders the alert as plain text, shared by SMS bodies and the email
// text part. Sections are capped at smsItemLimit items with a remainder line.
func (a Alert) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Court Alert: %s\n", a.Defendant)

	if n := len(a.NewCharges); n > 0 {
		fmt.Fprintf(&b, "\n%d new charge(s):\n", n)
		for _, c := range a.NewCharges[:min(n, smsItemLimit)] {
			fmt.Fprintf(&b, "  - %s\n", c.ChargeDescription)
		}
		if n > smsItemLimit {
			fmt.Fprintf(&b, "  - ...and %d more\n", n-smsItemLimit)
		}
	}

	if n := len(a.NewDockets); n > 0 {
		fmt.Fprintf(&b, "\n%d new docket entry(ies):\n", n)
		for _, d := range a.NewDockets[:min(n, smsItemLimit)] {
			fmt.Fprintf(&b, "  - Din %s: %s\n", d.DIN, truncate(d.DocketDescription, 50))
		}
		if n > smsItemLimit {
			fmt.Fprintf(&b, "  - ...and %d more\n", n-smsItemLimit)
		}
	}

	if n := len(a.Downloaded); n > 0 {
		fmt.Fprintf(&b, "\n%d document(s) downloaded\n", n)
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Notifier is one delivery channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}

// Dispatcher fans an alert out to every configured channel.
type Dispatcher struct {
	channels []Notifier
	log      *slog.Logger
}

// NewDispatcher creates a dispatcher over the given channels. An empty
// channel list is valid; alerts then only reach the log.
func NewDispatcher(log *slog.Logger, channels ...Notifier) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{channels: channels, log: log}
}

// Dispatch sends the alert on every channel, collecting failures. An empty
// alert is dropped without touching any channel.
func (d *Dispatcher) Dispatch(ctx context.Context, a Alert) error {
	if a.Empty() {
		return nil
	}

	var errs []error
	for _, ch := range d.channels {
		if err := ch.Send(ctx, a); err != nil {
			d.log.Error("notification failed", "channel", ch.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		d.log.Info("notification sent", "channel", ch.Name())
	}
	return errors.Join(errs...)
}
