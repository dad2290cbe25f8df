package schulmanager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"schulmanager-online/internal/components/assert"
	"schulmanager-online/internal/components/chrono"
	"schulmanager-online/internal/components/telemetry"
	"schulmanager-online/internal/snapshot"
	"schulmanager-online/pkg/htmlutil"
)

const (
	LoginURL     = "https://login.schulmanager-online.de/#/login"
	DashboardURL = "https://login.schulmanager-online.de/#/"
	HomeworkURL  = "https://login.schulmanager-online.de/#/modules/classbook/homework/"
	ScheduleURL  = "https://login.schulmanager-online.de/#/modules/schedules/view/"

	selectorAccount  = "#accountDropdown"
	selectorUsername = "#emailOrUsername"
	selectorPassword = "#password"
	selectorError    = ".alert-danger"
	xpathLoginButton = "//button[contains(text(), 'Einloggen')]"

	loginTimeout   = 20 * time.Second
	contentTimeout = 15 * time.Second
	homeworkRetry  = 7 * time.Second
)

const (
	report_scraper_launch    = "scraper.launch"
	report_scraper_login     = "scraper.login"
	report_scraper_close     = "scraper.close"
	report_scraper_homework  = "scraper.homework"
	report_scraper_exams     = "scraper.exams"
	report_scraper_timetable = "scraper.timetable"
)

// stage is how far a scraping cycle got.
type stage int

const (
	stageUninitialized stage = iota
	stageDriverStarted
	stageLoggedIn
	stageHomeworkScraped
	stageExamsScraped
	stageTimetableScraped
	stageClosed
)

func (s stage) String() string {
	switch s {
	case stageUninitialized:
		return "uninitialized"
	case stageDriverStarted:
		return "driver-started"
	case stageLoggedIn:
		return "logged-in"
	case stageHomeworkScraped:
		return "homework-scraped"
	case stageExamsScraped:
		return "exams-scraped"
	case stageTimetableScraped:
		return "timetable-scraped"
	case stageClosed:
		return "closed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

type Options struct {
	Username string
	Password string
	Launcher Launcher
	Time     chrono.TimeAPI
	Tel      telemetry.API

	// TimetableStart selects the week (YYYY-MM-DD) of the timetable, empty
	// means the current week.
	TimetableStart string
	// HomeworkRetry overrides how long to wait for a slow homework page.
	HomeworkRetry time.Duration
	// Pages receives the markup of every page that gets parsed.
	Pages PageOutput
}

// PageOutput receives named page dumps.
type PageOutput interface {
	Write(id string, contents string)
}

// Scraper drives a browser through the Schulmanager Online web app to read
// what the JSON API does not expose.
type Scraper struct {
	username       string
	password       string
	launcher       Launcher
	time           chrono.TimeAPI
	tel            telemetry.API
	timetableStart string
	homeworkRetry  time.Duration
	pages          PageOutput
}

func NewScraper(opts Options) *Scraper {
	assert.NotEmptyStr(opts.Username, "username")
	assert.NotEmptyStr(opts.Password, "password")
	assert.NotNil(opts.Launcher, "browser launcher")
	assert.NotNil(opts.Time, "time api")

	tel := opts.Tel
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}
	retry := opts.HomeworkRetry
	if retry == 0 {
		retry = homeworkRetry
	}

	return &Scraper{
		username:       opts.Username,
		password:       opts.Password,
		launcher:       opts.Launcher,
		time:           opts.Time,
		tel:            telemetry.NewScopedAPI("schulmanager_scraper", tel),
		timetableStart: opts.TimetableStart,
		homeworkRetry:  retry,
		pages:          opts.Pages,
	}
}

// cycle is one browser session from launch to close.
type cycle struct {
	browser Browser
	stage   stage
	tel     telemetry.API
}

func (c *cycle) advance(next stage) {
	c.tel.ReportDebug("cycle stage", c.stage.String(), next.String())
	c.stage = next
}

func (s *Scraper) start(ctx context.Context) (*cycle, error) {
	browser, err := s.launcher.Launch(ctx)
	if err != nil {
		s.tel.ReportBroken(report_scraper_launch, err)
		return nil, err
	}
	c := &cycle{browser: browser, stage: stageUninitialized, tel: s.tel}
	c.advance(stageDriverStarted)
	return c, nil
}

func (s *Scraper) finish(c *cycle) {
	err := c.browser.Close()
	if err != nil {
		s.tel.ReportWarning(report_scraper_close, err)
	}
	c.advance(stageClosed)
}

// ScrapeAll logs in and reads homework, exams and the timetable in one
// browser session. Failing to start the browser or to log in fails the
// whole call, a failing page only empties its own collection. A context that
// ends during the cycle fails the call too.
func (s *Scraper) ScrapeAll(ctx context.Context) (snapshot.Scraped, error) {
	c, err := s.start(ctx)
	if err != nil {
		return snapshot.Scraped{}, scraperError(fmt.Errorf("launch browser: %w", err))
	}
	defer s.finish(c)

	err = s.login(ctx, c.browser)
	if err != nil {
		return snapshot.Scraped{}, scraperError(err)
	}
	c.advance(stageLoggedIn)

	homework := s.scrapeHomework(ctx, c.browser)
	c.advance(stageHomeworkScraped)
	exams := s.scrapeExams(ctx, c.browser)
	c.advance(stageExamsScraped)
	timetable := s.scrapeTimetable(ctx, c.browser, s.timetableStart)
	c.advance(stageTimetableScraped)

	// steps swallow their own failures, a cancelled context must not pass
	// for a cycle that found nothing
	if ctx.Err() != nil {
		return snapshot.Scraped{}, scraperError(ctx.Err())
	}

	return snapshot.Scraped{
		Homework:     homework,
		Exams:        exams,
		Timetable:    timetable,
		Appointments: []snapshot.Appointment{},
	}, nil
}

// TestConnection reports whether the credentials can log in.
func (s *Scraper) TestConnection(ctx context.Context) bool {
	return s.CheckLogin(ctx) == nil
}

// CheckLogin launches a session and logs in, the returned error tells an
// invalid login (ErrScraperAuth) apart from other failures.
func (s *Scraper) CheckLogin(ctx context.Context) error {
	c, err := s.start(ctx)
	if err != nil {
		return scraperError(fmt.Errorf("launch browser: %w", err))
	}
	defer s.finish(c)

	err = s.login(ctx, c.browser)
	if err != nil {
		return scraperError(err)
	}
	c.advance(stageLoggedIn)
	return nil
}

func (s *Scraper) dumpPage(name, page string) {
	if s.pages == nil {
		return
	}
	s.pages.Write(name+".html", page)
}

func (s *Scraper) login(ctx context.Context, browser Browser) error {
	err := s.loginSequence(ctx, browser)
	if err == nil {
		return nil
	}
	s.tel.ReportWarning(report_scraper_login, err)
	if errors.Is(err, ErrScraperAuth) {
		return err
	}
	return authError(fmt.Errorf("login process failed: %w", err))
}

func (s *Scraper) loginSequence(ctx context.Context, browser Browser) error {
	err := browser.Navigate(ctx, LoginURL)
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}

	matched, err := browser.WaitAny(ctx, loginTimeout, selectorAccount, selectorUsername)
	if err != nil {
		return fmt.Errorf("wait for login form: %w", err)
	}
	if matched == selectorAccount {
		s.tel.ReportDebug("already logged in")
		return nil
	}

	err = browser.SendKeys(ctx, selectorUsername, s.username)
	if err != nil {
		return fmt.Errorf("enter username: %w", err)
	}
	err = browser.SendKeys(ctx, selectorPassword, s.password)
	if err != nil {
		return fmt.Errorf("enter password: %w", err)
	}
	err = browser.Click(ctx, xpathLoginButton)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	matched, err = browser.WaitAny(ctx, loginTimeout, selectorAccount, selectorError)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return authError(errors.New("unknown reason, possibly invalid credentials or page change"))
	}
	if matched == selectorAccount {
		s.tel.ReportDebug("login successful")
		return nil
	}

	page, err := browser.PageSource(ctx)
	if err != nil {
		return authError(fmt.Errorf("read error message: %w", err))
	}
	s.dumpPage("login", page)
	message, err := htmlutil.SelectText(page, selectorError)
	if err != nil || message == "" {
		return authError(errors.New("unknown reason, possibly invalid credentials or page change"))
	}
	return authError(errors.New(message))
}

func (s *Scraper) scrapeHomework(ctx context.Context, browser Browser) []snapshot.Homework {
	err := browser.Navigate(ctx, HomeworkURL)
	if err != nil {
		s.tel.ReportWarning(report_scraper_homework, err)
		return []snapshot.Homework{}
	}
	err = browser.WaitVisible(ctx, contentTimeout, ".tile")
	if err != nil {
		s.tel.ReportWarning(report_scraper_homework, err)
		return []snapshot.Homework{}
	}

	page, err := browser.PageSource(ctx)
	if err != nil {
		s.tel.ReportWarning(report_scraper_homework, err)
		return []snapshot.Homework{}
	}
	if !strings.Contains(page, "Hausaufgaben") {
		s.tel.ReportDebug("homework heading missing, waiting once more", s.homeworkRetry.String())
		select {
		case <-ctx.Done():
			return []snapshot.Homework{}
		case <-time.After(s.homeworkRetry):
		}
		page, err = browser.PageSource(ctx)
		if err != nil {
			s.tel.ReportWarning(report_scraper_homework, err)
			return []snapshot.Homework{}
		}
		if !strings.Contains(page, "Hausaufgaben") {
			s.tel.ReportWarning(report_scraper_homework, "homework heading still missing after retry")
			return []snapshot.Homework{}
		}
	}

	s.dumpPage("homework", page)

	out := []snapshot.Homework{}
	for _, block := range htmlutil.Chunks(page, `tile">`) {
		items, ok := parseHomeworkBlock(block)
		if !ok {
			s.tel.ReportDebug("skipped unreadable homework block")
			continue
		}
		out = append(out, items...)
	}
	s.tel.ReportCount(report_scraper_homework, int64(len(out)))
	return out
}

func (s *Scraper) scrapeExams(ctx context.Context, browser Browser) []snapshot.Exam {
	err := browser.Navigate(ctx, DashboardURL)
	if err != nil {
		s.tel.ReportWarning(report_scraper_exams, err)
		return []snapshot.Exam{}
	}
	_, err = browser.WaitAny(ctx, contentTimeout, "table")
	if err != nil {
		// the dashboard has no table when there are no upcoming exams
		s.tel.ReportDebug("no exam table appeared", err)
	}

	page, err := browser.PageSource(ctx)
	if err != nil {
		s.tel.ReportWarning(report_scraper_exams, err)
		return []snapshot.Exam{}
	}
	s.dumpPage("dashboard", page)

	table, ok := htmlutil.Frag(page).After("<table ").UpTo("</table>").Value()
	if !ok {
		s.tel.ReportDebug("no exam table on dashboard")
		return []snapshot.Exam{}
	}

	year := s.time.Now().Year()
	out := []snapshot.Exam{}
	for _, row := range htmlutil.Chunks(table, "<tr ") {
		exam, ok := parseExamRow(row, year)
		if !ok {
			s.tel.ReportDebug("skipped unreadable exam row")
			continue
		}
		out = append(out, exam)
	}
	s.tel.ReportCount(report_scraper_exams, int64(len(out)))
	return out
}

func (s *Scraper) scrapeTimetable(ctx context.Context, browser Browser, start string) snapshot.Timetable {
	err := browser.Navigate(ctx, ScheduleURL+start)
	if err != nil {
		s.tel.ReportWarning(report_scraper_timetable, err)
		return snapshot.Timetable{}
	}
	_, err = browser.WaitAny(ctx, contentTimeout, "class-hour-calendar")
	if err != nil {
		s.tel.ReportWarning(report_scraper_timetable, err)
		return snapshot.Timetable{}
	}

	page, err := browser.PageSource(ctx)
	if err != nil {
		s.tel.ReportWarning(report_scraper_timetable, err)
		return snapshot.Timetable{}
	}
	s.dumpPage("timetable", page)

	week, ok := parseTimetable(page)
	if !ok {
		s.tel.ReportWarning(report_scraper_timetable, "timetable markup not recognized")
		return snapshot.Timetable{}
	}
	return week
}
