package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/reveller/deuker-monitor/docket"
)

var (
	chargesSectionCascade = Cascade{
		`text=CHARGES`,
		`[class*="charges"]`,
	}
	docketsSectionCascade = Cascade{
		`text=DOCKETS`,
		`[class*="dockets"]`,
	}
	extraDocumentsCascade = Cascade{
		`text=EXTRA DOCUMENTS`,
		`text=Extra Documents`,
	}
)

// CaseDetails opens one case from the visible case list and parses its
// CHARGES and DOCKETS sections. Absence of either table yields an empty
// slice; absence of both is logged as a likely extraction failure but is
// not an error — the cycle continues.
func (p *Portal) CaseDetails(ctx context.Context, cs docket.CaseSummary) ([]docket.Charge, []docket.DocketEntry, error) {
	if err := p.openCase(ctx, cs); err != nil {
		return nil, nil, err
	}

	charges := p.parseCharges(ctx, cs.CaseNumber)
	dockets := p.parseDockets(ctx, cs.CaseNumber)

	p.log.Info("extracted case details",
		"case", cs.CaseNumber, "charges", len(charges), "dockets", len(dockets))
	if len(charges) == 0 && len(dockets) == 0 {
		p.log.Warn("no charges or dockets found; page may not have rendered",
			"case", cs.CaseNumber)
	}
	return charges, dockets, nil
}

// openCase clicks the case's identifier in the visible list, falling back to
// direct URL navigation when no click path matches.
func (p *Portal) openCase(ctx context.Context, cs docket.CaseSummary) error {
	cascade := Cascade{
		`text=` + cs.CaseNumber,
		fmt.Sprintf(`[href*="%s"]`, cs.CaseNumber),
	}
	if sel, err := cascade.Click(ctx, p.drv, p.cfg.ActionTimeout); err == nil {
		p.log.Debug("opened case by click", "case", cs.CaseNumber, "selector", sel)
		p.cfg.Settle(ctx, 2*time.Second)
		return nil
	}

	if cs.CaseURL == "" {
		return fmt.Errorf("%w: case %s has no click path and no URL", ErrNavigation, cs.CaseNumber)
	}
	p.log.Warn("could not click case, navigating directly", "case", cs.CaseNumber, "url", cs.CaseURL)
	if err := p.drv.Navigate(ctx, cs.CaseURL, p.cfg.NavTimeout); err != nil {
		return fmt.Errorf("%w: case %s: %v", ErrNavigation, cs.CaseNumber, err)
	}
	p.cfg.Settle(ctx, 2*time.Second)
	return nil
}

// expandSection clicks a collapsible section header. Expansion is
// idempotent: a failed click usually means the section is already open, so
// failures are logged at debug and swallowed.
func (p *Portal) expandSection(ctx context.Context, name string, cascade Cascade) {
	sel, err := cascade.Click(ctx, p.drv, 3*time.Second)
	if err != nil {
		p.log.Debug("section not clicked; may already be expanded", "section", name, "error", err)
		return
	}
	p.log.Debug("expanded section", "section", name, "selector", sel)
	p.cfg.Settle(ctx, time.Second)
}

func (p *Portal) parseCharges(ctx context.Context, caseNumber string) []docket.Charge {
	p.expandSection(ctx, "CHARGES", chargesSectionCascade)

	markup, err := p.drv.HTML(ctx)
	if err != nil {
		p.log.Warn("read charges markup failed", "case", caseNumber, "error", err)
		return nil
	}

	var charges []docket.Charge
	for _, table := range ParseTables(markup) {
		if !table.IsChargesTable() {
			continue
		}
		for _, row := range table.Rows {
			pr := ParseRow(KindCharges, caseNumber, row, p.cfg.Now())
			if pr.Kind != RowCharge {
				p.log.Debug("skipping charge row", "case", caseNumber, "reason", pr.Reason)
				continue
			}
			charges = append(charges, pr.Charge)
		}
		break // first matching table is authoritative
	}
	return charges
}

func (p *Portal) parseDockets(ctx context.Context, caseNumber string) []docket.DocketEntry {
	p.expandSection(ctx, "DOCKETS", docketsSectionCascade)

	markup, err := p.drv.HTML(ctx)
	if err != nil {
		p.log.Warn("read dockets markup failed", "case", caseNumber, "error", err)
		return nil
	}

	var dockets []docket.DocketEntry
	for _, table := range ParseTables(markup) {
		if !table.IsDocketsTable() {
			continue
		}
		for _, row := range table.Rows {
			pr := ParseRow(KindDockets, caseNumber, row, p.cfg.Now())
			if pr.Kind != RowDocket {
				p.log.Debug("skipping docket row", "case", caseNumber, "reason", pr.Reason)
				continue
			}
			dockets = append(dockets, pr.Docket)
		}
		break
	}
	return dockets
}

// ExpandDockets re-opens the DOCKETS section. The downloader calls this
// before locating view triggers, since the viewer flow may have collapsed it.
func (p *Portal) ExpandDockets(ctx context.Context) {
	p.expandSection(ctx, "DOCKETS", docketsSectionCascade)
}

// ExtraDocuments opens the Extra Documents tab, if the case has one, and
// returns its downloadable rows. The bool reports whether the tab exists.
func (p *Portal) ExtraDocuments(ctx context.Context, caseNumber string) ([]ExtraDocument, bool, error) {
	markup, err := p.drv.HTML(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("portal: read markup: %w", err)
	}
	if !strings.Contains(strings.ToUpper(markup), "EXTRA DOCUMENTS") {
		return nil, false, nil
	}

	if _, err := extraDocumentsCascade.Click(ctx, p.drv, 3*time.Second); err != nil {
		p.log.Debug("could not click Extra Documents tab", "case", caseNumber, "error", err)
		return nil, true, nil
	}
	p.cfg.Settle(ctx, time.Second)

	markup, err = p.drv.HTML(ctx)
	if err != nil {
		return nil, true, fmt.Errorf("portal: read extra documents markup: %w", err)
	}

	var docs []ExtraDocument
	for _, table := range ParseTables(markup) {
		if !table.IsExtraDocumentsTable() {
			continue
		}
		p.log.Info("found extra documents table", "case", caseNumber, "rows", len(table.Rows))
		for i, row := range table.Rows {
			pr := ParseRow(KindExtraDocuments, caseNumber, row, p.cfg.Now())
			if pr.Kind != RowExtraDocument {
				p.log.Debug("skipping extra-document row", "case", caseNumber, "reason", pr.Reason)
				continue
			}
			if pr.ExtraDocument.Description == "" {
				pr.ExtraDocument.Description = fmt.Sprintf("extra-doc-%d", i+1)
			}
			docs = append(docs, pr.ExtraDocument)
		}
		break
	}
	return docs, true, nil
}

// ReopenExtraDocuments re-clicks the Extra Documents tab to restore the
// listing after a viewer detour.
func (p *Portal) ReopenExtraDocuments(ctx context.Context) {
	if _, err := extraDocumentsCascade.Click(ctx, p.drv, 3*time.Second); err != nil {
		p.log.Debug("could not re-open Extra Documents tab", "error", err)
		return
	}
	p.cfg.Settle(ctx, time.Second)
}
