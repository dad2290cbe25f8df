package schulmanager

import (
	"context"
	"time"
)

// Browser is one exclusively owned browser session.
//
// note: fault injection point
type Browser interface {
	// Navigate points the session at url without waiting for the page to settle.
	Navigate(ctx context.Context, url string) error
	// WaitAny waits until one of the css selectors matches an element and
	// returns the selector that matched first.
	WaitAny(ctx context.Context, timeout time.Duration, selectors ...string) (string, error)
	// WaitVisible waits until the css selector matches a visible element.
	WaitVisible(ctx context.Context, timeout time.Duration, selector string) error
	SendKeys(ctx context.Context, selector, text string) error
	// Click clicks the element matched by an xpath expression.
	Click(ctx context.Context, xpath string) error
	// PageSource returns the current serialized DOM.
	PageSource(ctx context.Context) (string, error)
	Close() error
}

// Launcher starts a fresh browser session, sessions are never reused.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}
