package portal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// fakeDriver scripts driver behavior for flow tests: clicks succeed when the
// selector is in the allow set, HTML returns the current canned markup.
type fakeDriver struct {
	markup    string
	clickable map[string]bool // selector -> allowed; nil means allow all
	clicks    []string
	fills     map[string]string
	selects   map[string]string
	navs      []string

	url       string
	pageCount int
}

func newFakeDriver(markup string) *fakeDriver {
	return &fakeDriver{
		markup:    markup,
		fills:     map[string]string{},
		selects:   map[string]string{},
		pageCount: 1,
		url:       "https://portal.test/search",
	}
}

func (f *fakeDriver) allow(selectors ...string) {
	if f.clickable == nil {
		f.clickable = map[string]bool{}
	}
	for _, s := range selectors {
		f.clickable[s] = true
	}
}

func (f *fakeDriver) Navigate(_ context.Context, url string, _ time.Duration) error {
	f.navs = append(f.navs, url)
	f.url = url
	return nil
}

func (f *fakeDriver) Click(_ context.Context, sel string, _ time.Duration) error {
	if f.clickable != nil && !f.clickable[sel] {
		return fmt.Errorf("no element for %s", sel)
	}
	f.clicks = append(f.clicks, sel)
	return nil
}

func (f *fakeDriver) Fill(_ context.Context, sel, value string, _ time.Duration) error {
	if f.clickable != nil && !f.clickable[sel] {
		return fmt.Errorf("no element for %s", sel)
	}
	f.fills[sel] = value
	return nil
}

func (f *fakeDriver) SelectOption(_ context.Context, sel, value string, _ time.Duration) error {
	if f.clickable != nil && !f.clickable[sel] {
		return fmt.Errorf("no element for %s", sel)
	}
	f.selects[sel] = value
	return nil
}

func (f *fakeDriver) HTML(context.Context) (string, error) { return f.markup, nil }

func (f *fakeDriver) Locate(sel string) (Elements, error) {
	if f.clickable == nil || f.clickable[sel] {
		return Elements{&fakeElement{}}, nil
	}
	return nil, nil
}

func (f *fakeDriver) WaitAttached(_ context.Context, sel string, _ time.Duration) error {
	if f.clickable == nil || f.clickable[sel] {
		return nil
	}
	return fmt.Errorf("not attached: %s", sel)
}

func (f *fakeDriver) AwaitDownload(_ context.Context, _ time.Duration, trigger func() error) (string, error) {
	if err := trigger(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no download in fake")
}

func (f *fakeDriver) CurrentURL() string     { return f.url }
func (f *fakeDriver) PageCount() int         { return f.pageCount }
func (f *fakeDriver) AdoptLatestPage() error { return nil }
func (f *fakeDriver) ResetToPrimary() error  { f.pageCount = 1; return nil }

func (f *fakeDriver) clicked(sel string) bool {
	for _, c := range f.clicks {
		if c == sel {
			return true
		}
	}
	return false
}

func (f *fakeDriver) clickedPrefix(prefix string) bool {
	for _, c := range f.clicks {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

type fakeElement struct {
	text     string
	children Elements
	clickErr error
	clicked  bool
}

func (e *fakeElement) Click() error {
	if e.clickErr != nil {
		return e.clickErr
	}
	e.clicked = true
	return nil
}

func (e *fakeElement) ForceClick() error { e.clicked = true; return nil }

func (e *fakeElement) ScrollIntoView() error { return nil }

func (e *fakeElement) Text() (string, error) { return e.text, nil }

func (e *fakeElement) Find(string) (Elements, error) { return e.children, nil }
