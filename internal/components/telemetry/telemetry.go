package telemetry

import (
	"fmt"
)

// API is what every component reports through. Production uses SlogAPI,
// tests use Recorder and assert on the ids that were reported.
type API interface {
	// ReportBroken reports a failure that needs fixing, like a refresh log
	// that cannot be written (`refresh.record`).
	//
	// Ids are `<component>.<operation>` in lowercase, e.g. `client.fetch` or
	// `scraper.homework`. They name where to look, the error and the details
	// go into params. The package prefix comes from ScopedAPI.
	ReportBroken(id string, params ...any)

	// ReportWarning reports an expected kind of failure that the caller
	// recovers from, such as a homework page that did not load.
	ReportWarning(id string, params ...any)

	// ReportDebug reports details only shown with --verbose.
	ReportDebug(msg string, params ...any)

	// ReportCount reports a gauge reading (e.g. unread letters after a
	// refresh). Readings are points over time and are never summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a package namespace, so `refresh.letters`
// reported by the coordinator shows up as `coordinator: refresh.letters`.
type ScopedAPI struct {
	namespace string
	inner     API
}

// NewScopedAPI creates a ScopedAPI out of a given namespace and another api.
func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
