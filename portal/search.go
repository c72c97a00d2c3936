package portal

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/reveller/deuker-monitor/docket"
)

// Query identifies the defendant being monitored. CaseFilter, when set, is a
// normalized case number; filtering happens after extraction because the
// portal's search form has no case-number field.
type Query struct {
	FirstName  string
	LastName   string
	Sex        string
	CaseFilter string
}

// DisplayName is the "LAST, FIRST" form the portal uses for result rows.
func (q Query) DisplayName() string {
	return strings.ToUpper(q.LastName) + ", " + strings.ToUpper(q.FirstName)
}

// Config configures a Portal.
type Config struct {
	// BaseURL resolves relative case links. Default: the clerk site root.
	BaseURL string
	// SearchURL is the defendant search entry page.
	SearchURL string
	// NavTimeout bounds full page navigations. Default: 60s.
	NavTimeout time.Duration
	// ActionTimeout bounds individual click/fill waits. Default: 5s.
	ActionTimeout time.Duration
	Logger        *slog.Logger
	// Now injects the clock for discovery timestamps (tests).
	Now func() time.Time
	// Settle overrides the fixed pauses used for UI transitions (tests).
	Settle func(ctx context.Context, d time.Duration)
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://www2.miamidadeclerk.gov"
	}
	if c.SearchURL == "" {
		c.SearchURL = "https://www2.miamidadeclerk.gov/cjis/"
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 60 * time.Second
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Settle == nil {
		c.Settle = settle
	}
}

// Portal runs the extraction flows against one browser session.
type Portal struct {
	drv Driver
	cfg Config
	log *slog.Logger
}

// New creates a Portal over a driver session.
func New(d Driver, cfg Config) *Portal {
	cfg.defaults()
	return &Portal{drv: d, cfg: cfg, log: cfg.Logger}
}

// Selector cascades for the search flow. The portal renders no stable IDs,
// so each control is found by a priority list (see Cascade).
var (
	defendantTabCascade = Cascade{
		`text=Defendant`,
		`[href*="defendant"]`,
	}
	firstNameCascade = Cascade{
		`input[name="firstName"]`,
		`input[id*="first"]`,
		`input[placeholder*="First"]`,
	}
	lastNameCascade = Cascade{
		`input[name="lastName"]`,
		`input[id*="last"]`,
		`input[placeholder*="Last"]`,
	}
	sexCascade = Cascade{
		`select[name="sex"]`,
		`select[id*="sex"]`,
		`select[name="gender"]`,
	}
	searchButtonCascade = Cascade{
		`text=Search`,
		`input[type="submit"]`,
		`button[type="submit"]`,
		`[value="Search"]`,
	}
)

func defendantResultCascade(q Query) Cascade {
	return Cascade{
		`text=` + q.DisplayName(),
		`text=` + strings.ToUpper(q.LastName),
		`[class*="defendant"]`,
	}
}

// SearchDefendant navigates to the search page, opens the defendant form,
// fills it, and submits. On return the results page is loaded.
func (p *Portal) SearchDefendant(ctx context.Context, q Query) error {
	p.log.Info("navigating to search page", "url", p.cfg.SearchURL)
	if err := p.drv.Navigate(ctx, p.cfg.SearchURL, p.cfg.NavTimeout); err != nil {
		return fmt.Errorf("%w: open search page: %v", ErrNavigation, err)
	}

	sel, err := defendantTabCascade.Click(ctx, p.drv, p.cfg.ActionTimeout)
	if err != nil {
		return fmt.Errorf("%w: defendant search option: %v", ErrNavigation, err)
	}
	p.log.Debug("opened defendant form", "selector", sel)
	p.cfg.Settle(ctx, 2*time.Second)

	if _, err := firstNameCascade.Fill(ctx, p.drv, q.FirstName, p.cfg.ActionTimeout); err != nil {
		p.log.Warn("could not fill first name", "error", err)
	}
	if _, err := lastNameCascade.Fill(ctx, p.drv, q.LastName, p.cfg.ActionTimeout); err != nil {
		p.log.Warn("could not fill last name", "error", err)
	}
	if _, err := sexCascade.SelectOption(ctx, p.drv, q.Sex, p.cfg.ActionTimeout); err != nil {
		p.log.Warn("could not select sex", "error", err)
	}

	if _, err := searchButtonCascade.Click(ctx, p.drv, p.cfg.ActionTimeout); err != nil {
		return fmt.Errorf("%w: submit search: %v", ErrNavigation, err)
	}

	p.cfg.Settle(ctx, 3*time.Second)
	p.log.Info("search submitted", "defendant", q.DisplayName())
	return nil
}

// OpenCaseList clicks the defendant's result row so the case table popup is
// visible. Call after SearchDefendant.
func (p *Portal) OpenCaseList(ctx context.Context, q Query) error {
	sel, err := defendantResultCascade(q).Click(ctx, p.drv, p.cfg.ActionTimeout)
	if err != nil {
		return fmt.Errorf("%w: defendant result row: %v", ErrNavigation, err)
	}
	p.log.Debug("opened case list popup", "selector", sel)
	p.cfg.Settle(ctx, 2*time.Second)
	return nil
}

// Reopen re-runs the search and brings the case list popup back up without
// re-parsing it. Navigating back from a case detail view is unreliable, so
// the monitor repositions this way before every case after the first.
func (p *Portal) Reopen(ctx context.Context, q Query) error {
	if err := p.SearchDefendant(ctx, q); err != nil {
		return err
	}
	return p.OpenCaseList(ctx, q)
}

// CaseList runs the full search flow and parses the defendant's case table.
// An empty slice (no error) means the defendant has no cases, or none match
// the configured case filter.
func (p *Portal) CaseList(ctx context.Context, q Query) ([]docket.CaseSummary, error) {
	if err := p.SearchDefendant(ctx, q); err != nil {
		return nil, err
	}
	if err := p.OpenCaseList(ctx, q); err != nil {
		return nil, err
	}

	markup, err := p.drv.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("portal: read case list markup: %w", err)
	}

	cases := p.parseCaseList(markup)

	if q.CaseFilter != "" {
		filtered := cases[:0]
		for _, c := range cases {
			if c.CaseNumber == q.CaseFilter {
				filtered = append(filtered, c)
			}
		}
		cases = filtered
		p.log.Info("applied case filter", "filter", q.CaseFilter, "matched", len(cases))
	}
	return cases, nil
}

// parseCaseList reads case summaries from the popup's first table. Header:
// Case, Filed Date, Closed Date, First Charge, Balance Due.
func (p *Portal) parseCaseList(markup string) []docket.CaseSummary {
	tables := ParseTables(markup)
	if len(tables) == 0 {
		p.log.Warn("no case table found in popup")
		return nil
	}

	var cases []docket.CaseSummary
	for _, row := range tables[0].Rows {
		cells := row.Cells
		if len(cells) < 4 {
			continue
		}

		number, caseURL := p.caseNumberFromCell(cells[0])
		if number == "" {
			p.log.Debug("row without extractable case number", "text", clip(cells[0].Text, 50))
			continue
		}
		if caseURL == "" {
			caseURL = p.cfg.BaseURL + "/case/" + number
		}

		cs := docket.CaseSummary{
			CaseNumber:  number,
			CaseURL:     caseURL,
			FiledDate:   cells[1].Text,
			ClosedDate:  cells[2].Text,
			FirstCharge: cells[3].Text,
		}
		if len(cells) > 4 {
			cs.BalanceDue = cells[4].Text
		}
		cases = append(cases, cs)
		p.log.Debug("found case", "case", number)
	}
	return cases
}

// caseNumberFromCell resolves the case number from a hyperlinked cell, a
// plain-text cell matching the case-number shape, or the cell's first line.
func (p *Portal) caseNumberFromCell(cell Cell) (number, caseURL string) {
	if cell.LinkText != "" {
		number = cell.LinkText
		if cell.Href != "" {
			caseURL = p.resolveURL(cell.Href)
		}
		return number, caseURL
	}

	if m := docket.FindCaseNumber(cell.Text); m != "" {
		return m, ""
	}

	if line, _, _ := strings.Cut(cell.Text, "\n"); strings.TrimSpace(line) != "" {
		return strings.TrimSpace(line), ""
	}
	return "", ""
}

func (p *Portal) resolveURL(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	base, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// settle is a bounded, interrupt-aware pause for UI transitions that expose
// no waitable signal (popup fade-ins, section expansion).
func settle(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
