// Package portal drives the court portal: defendant search, case list,
// and per-case charge/docket/extra-document extraction.
//
// The browser itself is behind the Driver interface. portal decides WHAT to
// click and in what order; the driver (see the browser package) decides HOW.
// Tests script a fake driver with canned markup.
package portal

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the recoverable failure taxonomy. Callers log and
// continue; nothing here is fatal to a cycle.
var (
	// ErrNoMatch means no selector in a cascade yielded an element.
	ErrNoMatch = errors.New("portal: no selector matched")
	// ErrNavigation means the search/click path did not reach the expected page.
	ErrNavigation = errors.New("portal: navigation failed")
)

// Element is one matched element handle.
type Element interface {
	// Click dispatches a regular click.
	Click() error
	// ForceClick clicks bypassing visibility and occlusion checks.
	ForceClick() error
	// ScrollIntoView scrolls the element into the viewport.
	ScrollIntoView() error
	// Text returns the element's inner text.
	Text() (string, error)
	// Find locates descendants by selector.
	Find(selector string) (Elements, error)
}

// Elements is a matched element set.
type Elements []Element

// Driver is the browser capability set the portal flows consume.
//
// Selectors are CSS, with one extension borrowed from the driver layer:
// a "text=" prefix matches elements by visible text. All waits are bounded;
// a timeout is a recoverable error, never a hang.
type Driver interface {
	// Navigate loads a URL in the active page and waits for it to settle.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Click clicks the first match of selector.
	Click(ctx context.Context, selector string, timeout time.Duration) error
	// Fill sets the value of the first matching form field.
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	// SelectOption picks an option by label in the first matching <select>.
	SelectOption(ctx context.Context, selector, value string, timeout time.Duration) error
	// HTML returns the active page's rendered markup.
	HTML(ctx context.Context) (string, error)
	// Locate returns all current matches without waiting.
	Locate(selector string) (Elements, error)
	// WaitAttached blocks until selector has a match or the timeout elapses.
	WaitAttached(ctx context.Context, selector string, timeout time.Duration) error
	// AwaitDownload runs trigger and waits for the file transfer it starts,
	// returning the path of the downloaded temp file.
	AwaitDownload(ctx context.Context, timeout time.Duration, trigger func() error) (string, error)

	// CurrentURL is the active page's URL.
	CurrentURL() string
	// PageCount is the number of open tabs in the session.
	PageCount() int
	// AdoptLatestPage makes the newest tab the active page.
	AdoptLatestPage() error
	// ResetToPrimary closes every tab except the first and reactivates it.
	// It must succeed as a no-op when only the primary page is open.
	ResetToPrimary() error
}
