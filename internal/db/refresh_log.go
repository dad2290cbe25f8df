package db

import (
	"context"
	"time"
)

// Entry is the outcome of one refresh attempt. Only counts are kept, the
// letters and scraped records themselves are never stored.
type Entry struct {
	StartedAt     time.Time
	Duration      time.Duration
	Success       bool
	Error         string
	Letters       int
	Unread        int
	Homework      int
	Exams         int
	ScraperFailed bool
}

type entryRow struct {
	ID            int64  `db:"id"`
	StartedAt     int64  `db:"started_at"`
	DurationMs    int64  `db:"duration_ms"`
	Success       bool   `db:"success"`
	Error         string `db:"error"`
	Letters       int    `db:"letters"`
	Unread        int    `db:"unread"`
	Homework      int    `db:"homework"`
	Exams         int    `db:"exams"`
	ScraperFailed bool   `db:"scraper_failed"`
}

func (r entryRow) entry() Entry {
	return Entry{
		StartedAt:     time.UnixMilli(r.StartedAt),
		Duration:      time.Duration(r.DurationMs) * time.Millisecond,
		Success:       r.Success,
		Error:         r.Error,
		Letters:       r.Letters,
		Unread:        r.Unread,
		Homework:      r.Homework,
		Exams:         r.Exams,
		ScraperFailed: r.ScraperFailed,
	}
}

type RefreshLog struct {
	db DB
}

func NewRefreshLog(db DB) RefreshLog {
	return RefreshLog{db: db}
}

const insertEntry = `insert into refresh_log (
	started_at, duration_ms, success, error, letters, unread, homework, exams, scraper_failed
) values (
	:started_at, :duration_ms, :success, :error, :letters, :unread, :homework, :exams, :scraper_failed
)`

func (l RefreshLog) Record(ctx context.Context, e Entry) error {
	_, err := l.db.NamedExecContext(ctx, insertEntry, entryRow{
		StartedAt:     e.StartedAt.UnixMilli(),
		DurationMs:    e.Duration.Milliseconds(),
		Success:       e.Success,
		Error:         e.Error,
		Letters:       e.Letters,
		Unread:        e.Unread,
		Homework:      e.Homework,
		Exams:         e.Exams,
		ScraperFailed: e.ScraperFailed,
	})
	return err
}

// Recent returns up to n entries, newest first.
func (l RefreshLog) Recent(ctx context.Context, n int) ([]Entry, error) {
	var rows []entryRow
	err := l.db.SelectContext(ctx, &rows, l.db.Rebind(
		`select * from refresh_log order by id desc limit ?`,
	), n)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = r.entry()
	}
	return out, nil
}

// Prune deletes everything but the newest keep entries and returns how many
// were deleted.
func (l RefreshLog) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := l.db.ExecContext(ctx, l.db.Rebind(
		`delete from refresh_log where id not in (
			select id from refresh_log order by id desc limit ?
		)`,
	), keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
