package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"schulmanager-online/internal/components/chrono"
	"schulmanager-online/internal/components/telemetry"
	"schulmanager-online/internal/db"
	"schulmanager-online/internal/snapshot"

	"github.com/stretchr/testify/require"
)

type fakeLetters struct {
	letters []snapshot.Letter
	err     error
	calls   int
}

func (f *fakeLetters) Letters(ctx context.Context) ([]snapshot.Letter, error) {
	f.calls++
	return f.letters, f.err
}

type fakeScraper struct {
	scraped snapshot.Scraped
	err     error
}

func (f *fakeScraper) ScrapeAll(ctx context.Context) (snapshot.Scraped, error) {
	return f.scraped, f.err
}

type fakeRecorder struct {
	mutex   sync.Mutex
	entries []db.Entry
}

func (f *fakeRecorder) Record(ctx context.Context, e db.Entry) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

type fakeCron struct {
	interval time.Duration
	callback func()
}

func (f *fakeCron) Every(interval time.Duration, callback func()) error {
	f.interval = interval
	f.callback = callback
	return nil
}

func (f *fakeCron) Stop(ctx context.Context) {}

var fixedTime = chrono.FixedTime{At: time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)}

func sampleLetters() []snapshot.Letter {
	return []snapshot.Letter{
		{ID: "1", Title: "Elternabend", Read: false},
		{ID: "2", Title: "Ausflug", Read: true},
		{ID: "3", Title: "Zeugnisse", Read: false},
	}
}

func sampleScraped() snapshot.Scraped {
	scraped := snapshot.EmptyScraped()
	scraped.Homework = []snapshot.Homework{{Date: "2025-03-04", Subject: "Mathe", Task: "S. 12"}}
	scraped.Exams = []snapshot.Exam{{Date: "2025-03-10", Subject: "Deutsch"}}
	scraped.Timetable = snapshot.NewTimetable()
	scraped.Timetable[0] = []string{"M Schmidt 101"}
	return scraped
}

func TestRefreshWithoutScraper(t *testing.T) {
	letters := &fakeLetters{letters: sampleLetters()}
	recorder := &fakeRecorder{}
	store := snapshot.NewStore()
	c := New(Options{
		Letters:  letters,
		Store:    store,
		Time:     fixedTime,
		Tel:      &telemetry.Recorder{},
		Recorder: recorder,
	})

	require.Equal(t, APIOnlyInterval, c.Interval())
	require.False(t, c.ScrapingEnabled())
	require.Nil(t, store.Latest())

	require.NoError(t, c.Refresh(context.Background()))

	snap := store.Latest()
	require.NotNil(t, snap)
	require.Equal(t, 3, snap.TotalCount)
	require.Equal(t, 2, snap.UnreadCount)
	require.NotNil(t, snap.Homework)
	require.Empty(t, snap.Homework)
	require.Empty(t, snap.Timetable)

	status := c.Status()
	require.True(t, status.LastUpdateSuccess)
	require.Equal(t, fixedTime.At, status.LastUpdateSuccessTime)

	require.Len(t, recorder.entries, 1)
	require.True(t, recorder.entries[0].Success)
	require.Equal(t, 3, recorder.entries[0].Letters)
	require.Equal(t, 2, recorder.entries[0].Unread)
}

func TestRefreshWithScraper(t *testing.T) {
	store := snapshot.NewStore()
	c := New(Options{
		Letters: &fakeLetters{letters: sampleLetters()},
		Scraper: &fakeScraper{scraped: sampleScraped()},
		Store:   store,
		Time:    fixedTime,
		Tel:     &telemetry.Recorder{},
	})
	require.Equal(t, ScrapingInterval, c.Interval())

	require.NoError(t, c.Refresh(context.Background()))

	snap := store.Latest()
	require.Len(t, snap.Homework, 1)
	require.Len(t, snap.Exams, 1)
	require.Equal(t, "M Schmidt 101", snap.Timetable[0][0])
}

func TestRefreshScraperFailure(t *testing.T) {
	tel := &telemetry.Recorder{}
	recorder := &fakeRecorder{}
	store := snapshot.NewStore()
	c := New(Options{
		Letters:  &fakeLetters{letters: sampleLetters()},
		Scraper:  &fakeScraper{err: errors.New("browser crashed")},
		Store:    store,
		Time:     fixedTime,
		Tel:      tel,
		Recorder: recorder,
	})

	require.NoError(t, c.Refresh(context.Background()))
	require.True(t, tel.Has("warning", report_refresh_scraper))

	snap := store.Latest()
	require.Equal(t, 3, snap.TotalCount)
	require.Empty(t, snap.Homework)
	require.Empty(t, snap.Exams)
	require.Empty(t, snap.Appointments)
	require.Equal(t, 0, snap.Timetable.NonEmptyDays())

	require.True(t, c.Status().LastUpdateSuccess)
	require.True(t, recorder.entries[0].ScraperFailed)
}

func TestRefreshLettersFailureKeepsSnapshot(t *testing.T) {
	letters := &fakeLetters{letters: sampleLetters()}
	recorder := &fakeRecorder{}
	store := snapshot.NewStore()
	c := New(Options{
		Letters:  letters,
		Store:    store,
		Time:     fixedTime,
		Tel:      &telemetry.Recorder{},
		Recorder: recorder,
	})
	require.NoError(t, c.Refresh(context.Background()))
	previous := store.Latest()

	letters.err = errors.New("connection refused")
	err := c.Refresh(context.Background())
	require.ErrorIs(t, err, ErrUpdateFailed)
	require.ErrorIs(t, err, letters.err)

	require.Same(t, previous, store.Latest())
	status := c.Status()
	require.False(t, status.LastUpdateSuccess)
	require.Equal(t, fixedTime.At, status.LastUpdateSuccessTime)
	require.NotEmpty(t, status.LastError)

	require.Len(t, recorder.entries, 2)
	require.False(t, recorder.entries[1].Success)
	require.Contains(t, recorder.entries[1].Error, "connection refused")
}

func TestFirstRefreshFailure(t *testing.T) {
	c := New(Options{
		Letters: &fakeLetters{err: errors.New("unauthorized")},
		Store:   snapshot.NewStore(),
		Time:    fixedTime,
		Tel:     &telemetry.Recorder{},
	})
	err := c.FirstRefresh(context.Background())
	require.ErrorIs(t, err, ErrUpdateFailed)
	require.Nil(t, c.Store().Latest())
}

func TestOnRefresh(t *testing.T) {
	letters := &fakeLetters{letters: sampleLetters()}
	c := New(Options{
		Letters: letters,
		Store:   snapshot.NewStore(),
		Time:    fixedTime,
		Tel:     &telemetry.Recorder{},
	})

	var seen []bool
	c.OnRefresh(func(status Status) {
		seen = append(seen, status.LastUpdateSuccess)
	})

	require.NoError(t, c.Refresh(context.Background()))
	letters.err = errors.New("down")
	require.Error(t, c.Refresh(context.Background()))

	require.Equal(t, []bool{true, false}, seen)
}

func TestStartSchedulesRefresh(t *testing.T) {
	letters := &fakeLetters{letters: sampleLetters()}
	c := New(Options{
		Letters: letters,
		Scraper: &fakeScraper{scraped: sampleScraped()},
		Store:   snapshot.NewStore(),
		Time:    fixedTime,
		Tel:     &telemetry.Recorder{},
	})

	cron := &fakeCron{}
	require.NoError(t, c.Start(context.Background(), cron))
	require.Equal(t, ScrapingInterval, cron.interval)
	require.NotNil(t, cron.callback)

	cron.callback()
	require.Equal(t, 1, letters.calls)
	require.NotNil(t, c.Store().Latest())
}

func TestConcurrentRefreshesAreSerialized(t *testing.T) {
	source := &blockingLetters{release: make(chan struct{})}
	c := New(Options{
		Letters: source,
		Store:   snapshot.NewStore(),
		Time:    fixedTime,
		Tel:     &telemetry.Recorder{},
	})

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Refresh(context.Background())
		}()
	}
	for range 3 {
		source.release <- struct{}{}
	}
	wg.Wait()

	require.Equal(t, 1, source.maxActive)
}

type blockingLetters struct {
	release   chan struct{}
	mutex     sync.Mutex
	active    int
	maxActive int
}

func (b *blockingLetters) Letters(ctx context.Context) ([]snapshot.Letter, error) {
	b.mutex.Lock()
	b.active++
	b.maxActive = max(b.maxActive, b.active)
	b.mutex.Unlock()

	<-b.release

	b.mutex.Lock()
	b.active--
	b.mutex.Unlock()
	return nil, nil
}

type contextLetters struct {
	letters []snapshot.Letter
}

func (c contextLetters) Letters(ctx context.Context) ([]snapshot.Letter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.letters, nil
}

type scraperFunc func(ctx context.Context) (snapshot.Scraped, error)

func (f scraperFunc) ScrapeAll(ctx context.Context) (snapshot.Scraped, error) {
	return f(ctx)
}

func TestCancelledRefreshLeavesStateAlone(t *testing.T) {
	recorder := &fakeRecorder{}
	store := snapshot.NewStore()
	c := New(Options{
		Letters:  contextLetters{letters: sampleLetters()},
		Store:    store,
		Time:     fixedTime,
		Tel:      &telemetry.Recorder{},
		Recorder: recorder,
	})
	notified := 0
	c.OnRefresh(func(Status) { notified++ })

	require.NoError(t, c.Refresh(context.Background()))
	previous := store.Latest()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Refresh(ctx)
	require.ErrorIs(t, err, ErrRefreshCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrUpdateFailed)

	require.Same(t, previous, store.Latest())
	require.True(t, c.Status().LastUpdateSuccess)
	require.Empty(t, c.Status().LastError)
	require.Len(t, recorder.entries, 1)
	require.Equal(t, 1, notified)
}

func TestScrapeCancelledMidCycleKeepsSnapshot(t *testing.T) {
	recorder := &fakeRecorder{}
	store := snapshot.NewStore()
	scraped := sampleScraped()

	var cancel context.CancelFunc
	cancelDuringScrape := false
	c := New(Options{
		Letters: &fakeLetters{letters: sampleLetters()},
		Scraper: scraperFunc(func(ctx context.Context) (snapshot.Scraped, error) {
			if cancelDuringScrape {
				cancel()
				return snapshot.Scraped{}, ctx.Err()
			}
			return scraped, nil
		}),
		Store:    store,
		Time:     fixedTime,
		Tel:      &telemetry.Recorder{},
		Recorder: recorder,
	})
	require.NoError(t, c.Refresh(context.Background()))
	previous := store.Latest()
	require.Len(t, previous.Homework, 1)

	var ctx context.Context
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	cancelDuringScrape = true

	err := c.Refresh(ctx)
	require.ErrorIs(t, err, ErrRefreshCancelled)
	require.Same(t, previous, store.Latest())
	require.True(t, c.Status().LastUpdateSuccess)
	require.Len(t, recorder.entries, 1)
}

func TestScrapeDeadlinePublishesLettersOnly(t *testing.T) {
	recorder := &fakeRecorder{}
	store := snapshot.NewStore()
	c := New(Options{
		Letters: &fakeLetters{letters: sampleLetters()},
		Scraper: scraperFunc(func(ctx context.Context) (snapshot.Scraped, error) {
			<-ctx.Done()
			return snapshot.Scraped{}, ctx.Err()
		}),
		Store:    store,
		Time:     fixedTime,
		Tel:      &telemetry.Recorder{},
		Recorder: recorder,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	require.NoError(t, c.Refresh(ctx))

	snap := store.Latest()
	require.Equal(t, 3, snap.TotalCount)
	require.Empty(t, snap.Homework)
	require.True(t, c.Status().LastUpdateSuccess)
	require.Len(t, recorder.entries, 1)
	require.True(t, recorder.entries[0].ScraperFailed)
}

type currentRecorder struct {
	coordinator *Coordinator
	snap        *snapshot.Snapshot
	status      Status
}

func (r *currentRecorder) Record(ctx context.Context, e db.Entry) error {
	r.snap, r.status = r.coordinator.Current()
	return nil
}

func TestCurrentPairsSnapshotWithStatus(t *testing.T) {
	letters := &fakeLetters{letters: sampleLetters()}
	recorder := &currentRecorder{}
	c := New(Options{
		Letters:  letters,
		Store:    snapshot.NewStore(),
		Time:     fixedTime,
		Tel:      &telemetry.Recorder{},
		Recorder: recorder,
	})
	recorder.coordinator = c

	snap, status := c.Current()
	require.Nil(t, snap)
	require.False(t, status.LastUpdateSuccess)

	require.NoError(t, c.Refresh(context.Background()))
	require.NotNil(t, recorder.snap)
	require.True(t, recorder.status.LastUpdateSuccess)

	letters.err = errors.New("down")
	require.Error(t, c.Refresh(context.Background()))
	require.NotNil(t, recorder.snap)
	require.False(t, recorder.status.LastUpdateSuccess)
}

func TestListenersRunOutsideRefreshLock(t *testing.T) {
	c := New(Options{
		Letters: &fakeLetters{letters: sampleLetters()},
		Store:   snapshot.NewStore(),
		Time:    fixedTime,
		Tel:     &telemetry.Recorder{},
	})

	locked := true
	c.OnRefresh(func(Status) {
		if c.refreshing.TryLock() {
			locked = false
			c.refreshing.Unlock()
		}
	})

	require.NoError(t, c.Refresh(context.Background()))
	require.False(t, locked)
}
