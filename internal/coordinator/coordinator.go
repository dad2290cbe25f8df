// Package coordinator refreshes the snapshot on a schedule, merging the JSON
// API with the optional browser scraper.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"schulmanager-online/internal/components/assert"
	"schulmanager-online/internal/components/chrono"
	"schulmanager-online/internal/components/telemetry"
	"schulmanager-online/internal/db"
	"schulmanager-online/internal/snapshot"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// APIOnlyInterval is the refresh period when only the JSON API is polled.
	APIOnlyInterval = 300 * time.Second
	// ScrapingInterval is the refresh period when the browser scraper runs too.
	ScrapingInterval = 900 * time.Second
	// RefreshTimeout bounds a single refresh, scheduled or manual.
	RefreshTimeout = 10 * time.Minute
)

const (
	report_refresh_letters = "refresh.letters"
	report_refresh_scraper = "refresh.scraper"
	report_refresh_record  = "refresh.record"
	report_refresh_unread  = "refresh.unread"
)

// ErrUpdateFailed marks a refresh that did not publish a snapshot.
var ErrUpdateFailed = errors.New("update failed")

// ErrRefreshCancelled marks a refresh abandoned because its context was
// cancelled. Such an attempt leaves status, snapshot and refresh log alone.
var ErrRefreshCancelled = errors.New("refresh cancelled")

// LetterSource is the JSON API.
type LetterSource interface {
	Letters(ctx context.Context) ([]snapshot.Letter, error)
}

// Scraper is the best effort browser scraper.
type Scraper interface {
	ScrapeAll(ctx context.Context) (snapshot.Scraped, error)
}

// RefreshRecorder keeps the outcome of every refresh attempt.
type RefreshRecorder interface {
	Record(ctx context.Context, e db.Entry) error
}

type Status struct {
	LastUpdateSuccess     bool      `json:"last_update_success"`
	LastUpdateSuccessTime time.Time `json:"last_update_success_time"`
	LastAttempt           time.Time `json:"last_attempt"`
	LastError             string    `json:"last_error,omitempty"`
}

type Options struct {
	Letters LetterSource
	// Scraper is nil when scraping is disabled.
	Scraper  Scraper
	Store    *snapshot.Store
	Time     chrono.TimeAPI
	Tel      telemetry.API
	Recorder RefreshRecorder
}

type Coordinator struct {
	letters  LetterSource
	scraper  Scraper
	store    *snapshot.Store
	time     chrono.TimeAPI
	tel      telemetry.API
	recorder RefreshRecorder

	refreshes metric.Int64Counter
	durations metric.Float64Histogram

	// refreshing serializes refreshes, scheduled and manual alike
	refreshing sync.Mutex

	statusMutex sync.RWMutex
	status      Status
	listeners   []func(Status)
}

func New(opts Options) *Coordinator {
	assert.NotNil(opts.Letters, "letter source")
	assert.NotNil(opts.Store, "snapshot store")
	assert.NotNil(opts.Time, "time api")

	tel := opts.Tel
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}

	meter := otel.Meter("schulmanager/coordinator")
	refreshes, _ := meter.Int64Counter(
		"schulmanager.refresh.count",
		metric.WithDescription("refresh attempts by outcome"),
	)
	durations, _ := meter.Float64Histogram(
		"schulmanager.refresh.duration",
		metric.WithUnit("s"),
	)

	return &Coordinator{
		letters:   opts.Letters,
		scraper:   opts.Scraper,
		store:     opts.Store,
		time:      opts.Time,
		tel:       telemetry.NewScopedAPI("coordinator", tel),
		recorder:  opts.Recorder,
		refreshes: refreshes,
		durations: durations,
	}
}

// Interval is the scheduling period, scraping stretches it.
func (c *Coordinator) Interval() time.Duration {
	if c.scraper != nil {
		return ScrapingInterval
	}
	return APIOnlyInterval
}

// ScrapingEnabled reports whether the coordinator was configured with a scraper.
func (c *Coordinator) ScrapingEnabled() bool {
	return c.scraper != nil
}

func (c *Coordinator) Store() *snapshot.Store {
	return c.store
}

func (c *Coordinator) Status() Status {
	c.statusMutex.RLock()
	defer c.statusMutex.RUnlock()
	return c.status
}

// OnRefresh registers a listener that is called after every refresh attempt.
func (c *Coordinator) OnRefresh(listener func(Status)) {
	c.statusMutex.Lock()
	defer c.statusMutex.Unlock()
	c.listeners = append(c.listeners, listener)
}

// FirstRefresh runs the initial refresh, a failure here means the instance
// should not start.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	err := c.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("first refresh: %w", err)
	}
	return nil
}

// Start schedules refreshes every Interval until the cron is stopped.
func (c *Coordinator) Start(ctx context.Context, cron chrono.CronAPI) error {
	return cron.Every(c.Interval(), func() {
		refreshCtx, cancel := context.WithTimeout(ctx, RefreshTimeout)
		defer cancel()
		// failures are already reported and reflected in Status
		_ = c.Refresh(refreshCtx)
	})
}

// Refresh fetches letters, runs the scraper if configured and publishes the
// merged snapshot. When the letters cannot be fetched nothing is published
// and the previous snapshot stays in place. A refresh whose context gets
// cancelled returns ErrRefreshCancelled and changes nothing, an expired
// deadline counts as a failure like any other.
func (c *Coordinator) Refresh(ctx context.Context) error {
	status, err := c.refresh(ctx)
	if errors.Is(err, ErrRefreshCancelled) {
		return err
	}
	// listeners run without the refresh lock held
	c.notify(status)
	return err
}

func (c *Coordinator) refresh(ctx context.Context) (Status, error) {
	c.refreshing.Lock()
	defer c.refreshing.Unlock()

	started := c.time.Now()
	snap, scraperFailed, err := c.collect(ctx)
	duration := c.time.Now().Sub(started)

	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		c.tel.ReportDebug("refresh cancelled", "err", err)
		return Status{}, fmt.Errorf("%w: %w", ErrRefreshCancelled, err)
	}

	entry := db.Entry{
		StartedAt:     started,
		Duration:      duration,
		Success:       err == nil,
		ScraperFailed: scraperFailed,
	}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.Letters = snap.TotalCount
		entry.Unread = snap.UnreadCount
		entry.Homework = len(snap.Homework)
		entry.Exams = len(snap.Exams)
		c.tel.ReportCount(report_refresh_unread, int64(snap.UnreadCount))
	}
	status := c.commit(snap, started, err)

	c.refreshes.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", err == nil),
		attribute.Bool("scraper_failed", scraperFailed),
	))
	c.durations.Record(ctx, duration.Seconds())
	c.record(ctx, entry)

	if err != nil {
		return status, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	return status, nil
}

// Current returns the published snapshot together with the status of the
// refresh that produced it.
func (c *Coordinator) Current() (*snapshot.Snapshot, Status) {
	c.statusMutex.RLock()
	defer c.statusMutex.RUnlock()
	return c.store.Latest(), c.status
}

func (c *Coordinator) collect(ctx context.Context) (*snapshot.Snapshot, bool, error) {
	letters, err := c.letters.Letters(ctx)
	if err != nil {
		c.tel.ReportWarning(report_refresh_letters, err)
		return nil, false, fmt.Errorf("error communicating with api: %w", err)
	}

	if c.scraper == nil {
		return snapshot.New(letters, snapshot.EmptyScraped()), false, nil
	}

	scraped, err := c.scraper.ScrapeAll(ctx)
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return nil, true, fmt.Errorf("scraper: %w", err)
	}
	if err != nil {
		c.tel.ReportWarning(report_refresh_scraper, "continuing with api data only", err)
		return snapshot.New(letters, snapshot.EmptyScraped()), true, nil
	}
	return snapshot.New(letters, scraped), false, nil
}

func (c *Coordinator) record(ctx context.Context, entry db.Entry) {
	if c.recorder == nil {
		return
	}
	// the outcome is recorded even when the refresh was cancelled
	err := c.recorder.Record(context.WithoutCancel(ctx), entry)
	if err != nil {
		c.tel.ReportBroken(report_refresh_record, err)
	}
}

// commit publishes snap (unless the refresh failed) and updates the status
// under one lock so Current never pairs a snapshot with a stale status.
func (c *Coordinator) commit(snap *snapshot.Snapshot, attempt time.Time, err error) Status {
	c.statusMutex.Lock()
	defer c.statusMutex.Unlock()

	c.status.LastAttempt = attempt
	c.status.LastUpdateSuccess = err == nil
	if err == nil {
		c.store.Publish(snap)
		c.status.LastUpdateSuccessTime = attempt
		c.status.LastError = ""
	} else {
		c.status.LastError = err.Error()
	}
	return c.status
}

func (c *Coordinator) notify(status Status) {
	c.statusMutex.RLock()
	listeners := append([]func(Status){}, c.listeners...)
	c.statusMutex.RUnlock()

	for _, listener := range listeners {
		listener(status)
	}
}
