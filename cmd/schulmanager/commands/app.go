package commands

import (
	"context"
	"errors"
	"fmt"

	api "schulmanager-online/internal/apis/schulmanager"
	"schulmanager-online/internal/components/chrono"
	"schulmanager-online/internal/components/telemetry"
	"schulmanager-online/internal/config"
	"schulmanager-online/internal/coordinator"
	"schulmanager-online/internal/db"
	scraper "schulmanager-online/internal/scrapers/schulmanager"
	"schulmanager-online/internal/snapshot"
	"schulmanager-online/lib/util/restyutil"
	"schulmanager-online/lib/util/serviceutil"
)

// app is one configured instance with everything wired up.
type app struct {
	cfg         config.Config
	clock       chrono.StandardTime
	client      *api.Client
	scraper     *scraper.Scraper
	database    *db.DB
	refreshLog  *db.RefreshLog
	coordinator *coordinator.Coordinator
}

type appOptions struct {
	// timetableStart selects the scraped timetable week.
	timetableStart string
	// withoutDatabase skips the refresh log even when one is configured.
	withoutDatabase bool
	// dumpDir receives every http exchange and scraped page when set.
	dumpDir string
}

func mustReadConfig() config.Config {
	cfg, err := config.Read(*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	return cfg
}

func newApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	clock, err := chrono.NewStandardTime(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	tel := telemetry.SlogAPI{}

	var dump restyutil.Output
	if opts.dumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(opts.dumpDir)
		if err != nil {
			return nil, err
		}
		dump = output
	}

	a := &app{
		cfg:    cfg,
		clock:  clock,
		client: api.NewClient(cfg.Token, api.WithTelemetry(tel), api.WithDump(dump)),
	}
	coordinatorOpts := coordinator.Options{
		Letters: a.client,
		Store:   snapshot.NewStore(),
		Time:    clock,
		Tel:     tel,
	}

	if cfg.Scraping.Enabled {
		a.scraper = scraper.NewScraper(scraper.Options{
			Username:       cfg.Scraping.Username,
			Password:       cfg.Scraping.Password,
			Launcher:       scraper.ChromeLauncher{ExecPath: cfg.Scraping.ExecPath},
			Time:           clock,
			Tel:            tel,
			TimetableStart: opts.timetableStart,
			Pages:          dump,
		})
		coordinatorOpts.Scraper = a.scraper
	}

	if cfg.Database != "" && !opts.withoutDatabase {
		database, err := db.OpenDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		err = database.Migrate(ctx)
		if err != nil {
			database.Close()
			return nil, err
		}
		refreshLog := db.NewRefreshLog(database)
		a.database = &database
		a.refreshLog = &refreshLog
		coordinatorOpts.Recorder = refreshLog
	}

	a.coordinator = coordinator.New(coordinatorOpts)
	return a, nil
}

func mustNewApp(ctx context.Context, opts appOptions) *app {
	a, err := newApp(ctx, mustReadConfig(), opts)
	if err != nil {
		serviceutil.Fatal("failed to initialize", err)
	}
	return a
}

func (a *app) Close() error {
	if a.database == nil {
		return nil
	}
	return a.database.Close()
}

const (
	checkOK            = "ok"
	checkInvalidAuth   = "invalid_auth"
	checkCannotConnect = "cannot_connect"
	checkUnknown       = "unknown"
)

// classifyAPI maps an error of the JSON API to a check outcome.
func classifyAPI(err error) string {
	switch {
	case err == nil:
		return checkOK
	case errors.Is(err, api.ErrAuth):
		return checkInvalidAuth
	case errors.Is(err, api.ErrAPI):
		return checkCannotConnect
	}
	return checkUnknown
}

// classifyScraper maps an error of a scraper login to a check outcome.
func classifyScraper(err error) string {
	switch {
	case err == nil:
		return checkOK
	case errors.Is(err, scraper.ErrScraperAuth):
		return checkInvalidAuth
	case errors.Is(err, scraper.ErrScraper):
		return checkCannotConnect
	}
	return checkUnknown
}
