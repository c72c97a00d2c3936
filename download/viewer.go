package download

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/reveller/deuker-monitor/portal"
)

// modalSelectors detect an inline viewer overlay after the view control is
// clicked. Any one match means the viewer opened in the current page.
var modalSelectors = []string{
	`.modal`,
	`[role="dialog"]`,
	`.rpv-core__modal`,
	`.rpv-core__viewer`,
	`div[class*="modal"]`,
	`div[class*="dialog"]`,
	`div[class*="overlay"]`,
}

// viewerSelector is the rendered React PDF viewer container.
const viewerSelector = `.rpv-default-layout__container, .rpv-core__viewer`

// downloadButtonSelectors locate the viewer toolbar's download control, in
// decreasing specificity. The toolbar renders icon buttons without text,
// so the first two are structural.
var downloadButtonSelectors = []string{
	`div.rpv-default-layout__container > div > div.rpv-default-layout__body > ` +
		`div.rpv-default-layout__toolbar > div > div.rpv-toolbar__right > div:nth-child(4)`,
	`.rpv-toolbar__right > div:nth-child(4)`,
	`.rpv-default-layout__toolbar button[aria-label="Download"]`,
}

var pdfURLRe = regexp.MustCompile(`(https?://[^\s<>"]+\.pdf[^\s<>"]*|/cjis/[^\s<>"]*docketimage[^\s<>"]*)`)

// openViewer finds the table row for the given document description,
// clicks its view control, and waits for the viewer to appear as either an
// inline overlay, a new tab (which becomes the active page), or an in-place
// navigation.
func (d *Downloader) openViewer(ctx context.Context, description string, viewCascade portal.Cascade) error {
	btn, err := d.findTrigger(description, viewCascade)
	if err != nil {
		return err
	}

	initialPages := d.drv.PageCount()
	startURL := d.drv.CurrentURL()

	if err := btn.ScrollIntoView(); err != nil {
		d.log.Debug("scroll trigger into view", "error", err)
	}
	// Dispatched click first: the control sits behind responsive wrappers
	// that defeat a positional click on narrow layouts.
	if err := btn.ForceClick(); err != nil {
		d.log.Debug("dispatched click failed, trying regular click", "error", err)
		if err := btn.Click(); err != nil {
			return fmt.Errorf("download: click view control: %w", err)
		}
	}
	d.cfg.Settle(ctx, 2*time.Second)

	d.awaitViewer(ctx, initialPages, startURL)
	d.cfg.Settle(ctx, 2*time.Second)
	return nil
}

// findTrigger scans the page's table rows for the one matching the
// document description and returns its view control. When the row renders
// mobile and desktop copies of the control, the desktop copy (last match)
// wins. An empty description matches the first row with a control.
func (d *Downloader) findTrigger(description string, viewCascade portal.Cascade) (portal.Element, error) {
	// Slice on runes: descriptions come from scraped cells and may hold
	// multi-byte characters at the cut point.
	prefix := description
	if r := []rune(description); len(r) > 30 {
		prefix = string(r[:30])
	}
	prefix = strings.TrimSpace(prefix)

	rows, err := d.drv.Locate("table tr")
	if err != nil {
		return nil, fmt.Errorf("download: list rows: %w", err)
	}

	for _, row := range rows {
		text, err := row.Text()
		if err != nil {
			continue
		}
		if prefix != "" && !strings.Contains(text, prefix) {
			continue
		}
		for _, sel := range viewCascade {
			els, err := row.Find(sel)
			if err != nil || len(els) == 0 {
				continue
			}
			d.log.Debug("found view control", "selector", sel, "matches", len(els))
			return els[len(els)-1], nil
		}
		if prefix != "" {
			// The matching row has no control; no other row will.
			return nil, fmt.Errorf("%w: row %q", ErrNoTrigger, prefix)
		}
	}
	return nil, fmt.Errorf("%w: no row matched %q", ErrNoTrigger, prefix)
}

// awaitViewer resolves where the viewer opened. Failure to confirm is not
// fatal: the toolbar lookup in saveViaViewer is the real gate, and the
// page markup is sniffed for direct PDF URLs to aid diagnosis.
func (d *Downloader) awaitViewer(ctx context.Context, initialPages int, startURL string) {
	for _, sel := range modalSelectors {
		els, err := d.drv.Locate(sel)
		if err == nil && len(els) > 0 {
			d.log.Debug("viewer opened inline", "selector", sel)
			return
		}
	}

	if d.drv.PageCount() > initialPages {
		if err := d.drv.AdoptLatestPage(); err != nil {
			d.log.Debug("adopt viewer tab", "error", err)
		} else {
			d.log.Debug("viewer opened in new tab", "url", d.drv.CurrentURL())
			return
		}
	}

	if u := d.drv.CurrentURL(); u != startURL {
		d.log.Debug("viewer opened by navigation", "url", u)
		return
	}

	if err := d.drv.WaitAttached(ctx, viewerSelector, d.cfg.ViewerTimeout); err == nil {
		d.log.Debug("viewer rendered in place")
		return
	}

	d.log.Warn("viewer did not confirm; proceeding to toolbar lookup")
	d.sniffPDFURLs(ctx)
}

func (d *Downloader) sniffPDFURLs(ctx context.Context) {
	markup, err := d.drv.HTML(ctx)
	if err != nil {
		return
	}
	urls := pdfURLRe.FindAllString(markup, 3)
	if len(urls) > 0 {
		d.log.Debug("candidate pdf urls in page", "urls", urls)
	}
}

// saveViaViewer clicks the viewer's download button, waits for the
// transfer, and files the result at destPath.
func (d *Downloader) saveViaViewer(ctx context.Context, destPath string) error {
	tmp, err := d.drv.AwaitDownload(ctx, d.cfg.DownloadTimeout, d.clickDownloadButton)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoDownload, err)
	}
	return d.place(tmp, destPath)
}

// clickDownloadButton tries the toolbar selectors in order, dispatching
// the click directly since the icon buttons reject positional clicks under
// some overlay states.
func (d *Downloader) clickDownloadButton() error {
	for _, sel := range downloadButtonSelectors {
		els, err := d.drv.Locate(sel)
		if err != nil || len(els) == 0 {
			continue
		}
		if err := els[0].ForceClick(); err != nil {
			d.log.Debug("download button click failed", "selector", sel, "error", err)
			continue
		}
		d.log.Debug("clicked download button", "selector", sel)
		return nil
	}
	return fmt.Errorf("download: download button: %w", portal.ErrNoMatch)
}
