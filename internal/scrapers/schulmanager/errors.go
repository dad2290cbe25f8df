package schulmanager

import (
	"errors"
	"fmt"
)

var (
	// ErrScraper matches every failure of a scraping cycle.
	ErrScraper = errors.New("schulmanager scraper error")
	// ErrScraperAuth is the subset of ErrScraper caused by a failed login.
	ErrScraperAuth = errors.New("schulmanager login failed")
)

// Error matches ErrScraper and its Kind with errors.Is.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Err.Error())
}

func (e *Error) Is(target error) bool {
	return target == ErrScraper || target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func scraperError(err error) error {
	return &Error{Kind: ErrScraper, Err: err}
}

func authError(err error) error {
	return &Error{Kind: ErrScraperAuth, Err: err}
}
