package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/reveller/deuker-monitor/portal"
)

// Session is one browsing context: a primary stealth page plus whatever
// viewer tabs the portal opens on top of it. It implements portal.Driver.
//
// Selectors are CSS. The "text=" prefix switches to an XPath lookup that
// resolves to the deepest element containing the given visible text, which
// is how the portal's unlabeled buttons and tabs are found.
type Session struct {
	browser     *rod.Browser
	primary     *rod.Page
	page        *rod.Page
	downloadDir string
	log         *slog.Logger
}

func newSession(b *rod.Browser, downloadDir string, log *slog.Logger) (*Session, error) {
	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create stealth page: %w", err)
	}
	return &Session{
		browser:     b,
		primary:     page,
		page:        page,
		downloadDir: downloadDir,
		log:         log,
	}, nil
}

// Close closes every page the session opened.
func (s *Session) Close() error {
	if err := s.ResetToPrimary(); err != nil {
		s.log.Debug("reset before close", "error", err)
	}
	if s.primary != nil {
		return s.primary.Close()
	}
	return nil
}

// Navigate loads a URL in the active page. A load-event timeout after a
// successful navigation is tolerated; the portal renders progressively.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	page := s.page.Context(ctx).Timeout(timeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		s.log.Warn("wait load timeout", "url", url, "error", err)
	}
	return nil
}

// Click waits for the selector and clicks its first resolution.
func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) error {
	el, err := s.element(ctx, selector, timeout)
	if err != nil {
		return fmt.Errorf("browser: click %s: %w", selector, err)
	}
	if err := el.ScrollIntoView(); err != nil {
		s.log.Debug("scroll into view", "selector", selector, "error", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click %s: %w", selector, err)
	}
	return nil
}

// Fill replaces the value of the first matching form field.
func (s *Session) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	el, err := s.element(ctx, selector, timeout)
	if err != nil {
		return fmt.Errorf("browser: fill %s: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		s.log.Debug("select all text", "selector", selector, "error", err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("browser: fill %s: %w", selector, err)
	}
	return nil
}

// SelectOption picks a <select> option by its visible label.
func (s *Session) SelectOption(ctx context.Context, selector, value string, timeout time.Duration) error {
	el, err := s.element(ctx, selector, timeout)
	if err != nil {
		return fmt.Errorf("browser: select %s: %w", selector, err)
	}
	if err := el.Select([]string{value}, true, rod.SelectorTypeText); err != nil {
		return fmt.Errorf("browser: select %s option %q: %w", selector, value, err)
	}
	return nil
}

// HTML returns the active page's rendered markup.
func (s *Session) HTML(ctx context.Context) (string, error) {
	markup, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: read html: %w", err)
	}
	return markup, nil
}

// Locate returns all current matches without waiting.
func (s *Session) Locate(selector string) (portal.Elements, error) {
	var (
		els rod.Elements
		err error
	)
	if text, ok := strings.CutPrefix(selector, "text="); ok {
		els, err = s.page.ElementsX(textXPath(text))
	} else {
		els, err = s.page.Elements(selector)
	}
	if err != nil {
		return nil, fmt.Errorf("browser: locate %s: %w", selector, err)
	}
	out := make(portal.Elements, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el, log: s.log})
	}
	return out, nil
}

// WaitAttached blocks until the selector has a match or the timeout elapses.
func (s *Session) WaitAttached(ctx context.Context, selector string, timeout time.Duration) error {
	if _, err := s.element(ctx, selector, timeout); err != nil {
		return fmt.Errorf("browser: wait %s: %w", selector, err)
	}
	return nil
}

// AwaitDownload arms download capture on the session's download directory,
// runs trigger, and waits for the transfer it starts. Returns the path of
// the downloaded file (named by GUID; callers rename it). The browser-side
// event wait is bound to the same deadline, so an abandoned wait cannot
// outlive this call as a blocked goroutine.
func (s *Session) AwaitDownload(ctx context.Context, timeout time.Duration, trigger func() error) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	wait := s.browser.Context(waitCtx).WaitDownload(s.downloadDir)

	if err := trigger(); err != nil {
		return "", err
	}

	done := make(chan *proto.PageDownloadWillBegin, 1)
	go func() { done <- wait() }()

	return downloadOutcome(ctx, waitCtx, done, s.downloadDir, timeout)
}

// downloadOutcome resolves an armed wait to the download's temp path, the
// caller's cancellation, or a timeout. A nil event means the bound wait
// expired before the transfer began.
func downloadOutcome(ctx, waitCtx context.Context, done <-chan *proto.PageDownloadWillBegin, dir string, timeout time.Duration) (string, error) {
	select {
	case info := <-done:
		if info == nil {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("browser: no download within %s", timeout)
		}
		return filepath.Join(dir, info.GUID), nil
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("browser: no download within %s", timeout)
	}
}

// CurrentURL is the active page's URL, empty when it cannot be read.
func (s *Session) CurrentURL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// PageCount is the number of open tabs in the browsing context.
func (s *Session) PageCount() int {
	pages, err := s.browser.Pages()
	if err != nil {
		return 0
	}
	return len(pages)
}

// AdoptLatestPage makes the newest non-primary tab the active page. The
// document viewer opens in its own tab; adoption points subsequent driver
// calls at it.
func (s *Session) AdoptLatestPage() error {
	pages, err := s.browser.Pages()
	if err != nil {
		return fmt.Errorf("browser: list pages: %w", err)
	}
	for _, p := range pages {
		if p.TargetID == s.primary.TargetID {
			continue
		}
		if _, err := p.Activate(); err != nil {
			s.log.Debug("activate adopted page", "error", err)
		}
		s.page = p
		return nil
	}
	return errors.New("browser: no secondary page to adopt")
}

// ResetToPrimary closes every viewer tab and reactivates the primary page.
// No-op when only the primary page is open.
func (s *Session) ResetToPrimary() error {
	pages, err := s.browser.Pages()
	if err != nil {
		return fmt.Errorf("browser: list pages: %w", err)
	}
	for _, p := range pages {
		if p.TargetID == s.primary.TargetID {
			continue
		}
		if err := p.Close(); err != nil {
			s.log.Debug("close viewer tab", "error", err)
		}
	}
	s.page = s.primary
	if _, err := s.primary.Activate(); err != nil {
		s.log.Debug("activate primary page", "error", err)
	}
	return nil
}

// element waits for the first resolution of selector, bounded by timeout.
func (s *Session) element(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, error) {
	page := s.page.Context(ctx).Timeout(timeout)
	if text, ok := strings.CutPrefix(selector, "text="); ok {
		return page.ElementX(textXPath(text))
	}
	return page.Element(selector)
}

// element adapts a Rod element to the portal's Element interface.
type element struct {
	el  *rod.Element
	log *slog.Logger
}

func (e *element) Click() error {
	if err := e.el.ScrollIntoView(); err != nil {
		e.log.Debug("scroll into view", "error", err)
	}
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

// ForceClick dispatches a DOM click, bypassing visibility and occlusion
// checks. The viewer's download button sits under an overlay on some cases.
func (e *element) ForceClick() error {
	_, err := e.el.Eval(`() => this.click()`)
	return err
}

func (e *element) ScrollIntoView() error { return e.el.ScrollIntoView() }

func (e *element) Text() (string, error) { return e.el.Text() }

func (e *element) Find(selector string) (portal.Elements, error) {
	var (
		els rod.Elements
		err error
	)
	if text, ok := strings.CutPrefix(selector, "text="); ok {
		els, err = e.el.ElementsX(relativeTextXPath(text))
	} else {
		els, err = e.el.Elements(selector)
	}
	if err != nil {
		return nil, err
	}
	out := make(portal.Elements, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el, log: e.log})
	}
	return out, nil
}

// textXPath resolves a visible-text lookup to the deepest elements that
// contain the text. The inner not() clause drops ancestors, which would
// otherwise all match; script and style bodies are excluded.
func textXPath(text string) string {
	q := xpathLiteral(text)
	return fmt.Sprintf(
		`//*[not(self::script) and not(self::style) and contains(normalize-space(.), %s) and not(.//*[contains(normalize-space(.), %s)])]`,
		q, q)
}

func relativeTextXPath(text string) string {
	return "." + textXPath(text)
}

// xpathLiteral quotes a string for embedding in an XPath expression.
// XPath 1.0 has no escape syntax, so strings containing single quotes are
// rebuilt with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, "'")
	args := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			args = append(args, `"'"`)
		}
		if p != "" {
			args = append(args, "'"+p+"'")
		}
	}
	if len(args) == 1 {
		return args[0]
	}
	return "concat(" + strings.Join(args, ", ") + ")"
}
