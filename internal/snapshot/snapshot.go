// Package snapshot holds the records produced by one refresh cycle and the
// store that publishes the most recent one.
package snapshot

import "sync/atomic"

// DaysPerWeek is the number of day lists in a timetable, Monday first.
const DaysPerWeek = 7

type Letter struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	Read      bool   `json:"read"`
}

type Homework struct {
	// Date is formatted as YYYY-MM-DD.
	Date        string `json:"date"`
	Subject     string `json:"subject"`
	Task        string `json:"task"`
	Description string `json:"description"`
}

type Exam struct {
	// Date is formatted as YYYY-MM-DD.
	Date    string `json:"date"`
	Subject string `json:"subject"`
	// Time is formatted as "HH:MM - HH:MM".
	Time        string `json:"time"`
	Description string `json:"description"`
}

// Appointment is reserved, nothing produces appointments yet.
type Appointment struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

// Timetable is either empty (the timetable could not be scraped) or holds
// exactly DaysPerWeek day lists of lesson descriptors in period order.
type Timetable [][]string

// NewTimetable returns a timetable with DaysPerWeek empty days.
func NewTimetable() Timetable {
	out := make(Timetable, DaysPerWeek)
	for i := range out {
		out[i] = []string{}
	}
	return out
}

// Day returns the lessons of the given weekday index (0 = Monday), missing
// days read as empty.
func (t Timetable) Day(i int) []string {
	if i < 0 || i >= len(t) || t[i] == nil {
		return []string{}
	}
	return t[i]
}

// NonEmptyDays counts the days that have at least one lesson entry.
func (t Timetable) NonEmptyDays() int {
	count := 0
	for _, day := range t {
		if len(day) > 0 {
			count++
		}
	}
	return count
}

// Scraped is everything the browser scraper contributes to a snapshot.
type Scraped struct {
	Homework     []Homework    `json:"homework"`
	Exams        []Exam        `json:"exams"`
	Timetable    Timetable     `json:"timetable"`
	Appointments []Appointment `json:"appointments"`
}

// EmptyScraped is what a snapshot carries when scraping is disabled or failed.
func EmptyScraped() Scraped {
	return Scraped{
		Homework:     []Homework{},
		Exams:        []Exam{},
		Timetable:    Timetable{},
		Appointments: []Appointment{},
	}
}

// Normalize replaces nil collections with empty ones.
func (s Scraped) Normalize() Scraped {
	if s.Homework == nil {
		s.Homework = []Homework{}
	}
	if s.Exams == nil {
		s.Exams = []Exam{}
	}
	if s.Timetable == nil {
		s.Timetable = Timetable{}
	}
	if s.Appointments == nil {
		s.Appointments = []Appointment{}
	}
	return s
}

// Snapshot is the complete result of one refresh cycle. It is never mutated
// after being published.
type Snapshot struct {
	Letters     []Letter `json:"letters"`
	UnreadCount int      `json:"unread_count"`
	TotalCount  int      `json:"total_count"`
	Scraped
}

// New merges letters with scraped data, deriving the letter counts.
func New(letters []Letter, scraped Scraped) *Snapshot {
	if letters == nil {
		letters = []Letter{}
	}
	unread := 0
	for _, l := range letters {
		if !l.Read {
			unread++
		}
	}
	return &Snapshot{
		Letters:     letters,
		UnreadCount: unread,
		TotalCount:  len(letters),
		Scraped:     scraped.Normalize(),
	}
}

// Store publishes the latest snapshot of one configured instance. Readers
// either see nil (nothing published yet) or a complete snapshot.
type Store struct {
	current atomic.Pointer[Snapshot]
}

func NewStore() *Store {
	return &Store{}
}

// Latest returns the most recently published snapshot or nil.
func (s *Store) Latest() *Snapshot {
	return s.current.Load()
}

// Publish replaces the current snapshot wholesale.
func (s *Store) Publish(snap *Snapshot) {
	s.current.Store(snap)
}
