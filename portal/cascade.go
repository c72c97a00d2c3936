package portal

import (
	"context"
	"fmt"
	"time"
)

// Cascade is an ordered list of candidate selectors tried in priority order.
// The portal's markup exposes no stable identifiers, so every lookup is a
// trade of precision for resilience: the first selector that matches wins.
//
// The same construct serves trigger-finding, form-filling, and download
// button resolution; per-call ad hoc fallback chains are not written.
type Cascade []string

// Click tries each selector until one click succeeds. Returns the selector
// that worked, or ErrNoMatch wrapped with the cascade's candidates.
func (c Cascade) Click(ctx context.Context, d Driver, timeout time.Duration) (string, error) {
	for _, sel := range c {
		if err := d.Click(ctx, sel, timeout); err == nil {
			return sel, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("click %v: %w", []string(c), ErrNoMatch)
}

// Fill tries each selector until one fill succeeds.
func (c Cascade) Fill(ctx context.Context, d Driver, value string, timeout time.Duration) (string, error) {
	for _, sel := range c {
		if err := d.Fill(ctx, sel, value, timeout); err == nil {
			return sel, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("fill %v: %w", []string(c), ErrNoMatch)
}

// SelectOption tries each selector until one select succeeds.
func (c Cascade) SelectOption(ctx context.Context, d Driver, value string, timeout time.Duration) (string, error) {
	for _, sel := range c {
		if err := d.SelectOption(ctx, sel, value, timeout); err == nil {
			return sel, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("select %v: %w", []string(c), ErrNoMatch)
}

// Locate returns the match set of the first selector with at least one
// match, along with the selector that produced it.
func (c Cascade) Locate(d Driver) (Elements, string, error) {
	for _, sel := range c {
		els, err := d.Locate(sel)
		if err != nil {
			continue
		}
		if len(els) > 0 {
			return els, sel, nil
		}
	}
	return nil, "", fmt.Errorf("locate %v: %w", []string(c), ErrNoMatch)
}
