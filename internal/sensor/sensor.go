// Package sensor projects the latest snapshot into the sensors a home
// automation host displays.
package sensor

import (
	"fmt"
	"time"

	"schulmanager-online/internal/components/chrono"
	"schulmanager-online/internal/coordinator"
	"schulmanager-online/internal/snapshot"
)

const entityPrefix = "schulmanager_online"

type Kind string

const (
	KindLetters       Kind = "letters"
	KindUnreadLetters Kind = "unread_letters"
	KindHomework      Kind = "homework"
	KindExams         Kind = "exams"
	KindAppointments  Kind = "appointments"
	KindTimetable     Kind = "timetable"
)

type description struct {
	name string
	icon string
}

var descriptions = map[Kind]description{
	KindLetters:       {name: "Letters", icon: "mdi:email"},
	KindUnreadLetters: {name: "Unread Letters", icon: "mdi:email-outline"},
	KindHomework:      {name: "Homework", icon: "mdi:book-open-page-variant"},
	KindExams:         {name: "Exams", icon: "mdi:clipboard-text"},
	KindAppointments:  {name: "Appointments", icon: "mdi:calendar"},
	KindTimetable:     {name: "Timetable", icon: "mdi:timetable"},
}

var weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Kinds lists the sensors of an instance in display order, the scraped ones
// only exist when scraping is enabled.
func Kinds(scraping bool) []Kind {
	kinds := []Kind{KindLetters, KindUnreadLetters}
	if scraping {
		kinds = append(kinds, KindHomework, KindExams, KindAppointments, KindTimetable)
	}
	return kinds
}

func (k Kind) Name() string {
	return fmt.Sprintf("Schulmanager Online %s", descriptions[k].name)
}

func (k Kind) EntityID() string {
	return fmt.Sprintf("%s_%s", entityPrefix, k)
}

func (k Kind) Icon() string {
	return descriptions[k].icon
}

type Sensor struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	Icon     string `json:"icon"`
	// State is nil until the first snapshot was published.
	State      *int           `json:"state"`
	Available  bool           `json:"available"`
	Attributes map[string]any `json:"attributes"`
}

// Source is what sensors read from, usually a coordinator.
type Source interface {
	// Current returns the latest snapshot and the status that goes with it.
	Current() (*snapshot.Snapshot, coordinator.Status)
	ScrapingEnabled() bool
}

// All builds every sensor of the instance behind source.
func All(source Source, clock chrono.TimeAPI) []Sensor {
	snap, status := source.Current()
	today := chrono.Today(clock)

	kinds := Kinds(source.ScrapingEnabled())
	sensors := make([]Sensor, 0, len(kinds))
	for _, kind := range kinds {
		sensors = append(sensors, Build(kind, snap, status, today))
	}
	return sensors
}

// Build projects a single sensor. today is a YYYY-MM-DD date used to select
// upcoming homework and exams.
func Build(kind Kind, snap *snapshot.Snapshot, status coordinator.Status, today string) Sensor {
	return Sensor{
		EntityID:   kind.EntityID(),
		Name:       kind.Name(),
		Icon:       kind.Icon(),
		State:      State(kind, snap),
		Available:  status.LastUpdateSuccess,
		Attributes: Attributes(kind, snap, status, today),
	}
}

func State(kind Kind, snap *snapshot.Snapshot) *int {
	if snap == nil {
		return nil
	}

	var value int
	switch kind {
	case KindLetters:
		value = snap.TotalCount
	case KindUnreadLetters:
		value = snap.UnreadCount
	case KindHomework:
		value = len(snap.Homework)
	case KindExams:
		value = len(snap.Exams)
	case KindAppointments:
		value = len(snap.Appointments)
	case KindTimetable:
		value = snap.Timetable.NonEmptyDays()
	default:
		return nil
	}
	return &value
}

func Attributes(kind Kind, snap *snapshot.Snapshot, status coordinator.Status, today string) map[string]any {
	if snap == nil {
		return map[string]any{}
	}

	attributes := map[string]any{
		"last_update": lastUpdate(status),
	}
	switch kind {
	case KindLetters:
		attributes["letters"] = snap.Letters
		attributes["total_count"] = snap.TotalCount
		attributes["unread_count"] = snap.UnreadCount
	case KindHomework:
		attributes["homework"] = snap.Homework
		attributes["upcoming_homework"] = upcoming(snap.Homework, today, func(h snapshot.Homework) string {
			return h.Date
		})
	case KindExams:
		attributes["exams"] = snap.Exams
		attributes["upcoming_exams"] = upcoming(snap.Exams, today, func(e snapshot.Exam) string {
			return e.Date
		})
	case KindAppointments:
		attributes["appointments"] = snap.Appointments
	case KindTimetable:
		attributes["timetable"] = snap.Timetable
		for i, day := range snap.Timetable {
			if i >= len(weekdays) {
				break
			}
			attributes[weekdays[i]] = day
		}
	}
	return attributes
}

func lastUpdate(status coordinator.Status) *time.Time {
	if status.LastUpdateSuccessTime.IsZero() {
		return nil
	}
	t := status.LastUpdateSuccessTime
	return &t
}

// upcoming keeps the records dated today or later. Dates are YYYY-MM-DD so
// they compare lexically.
func upcoming[T any](records []T, today string, date func(T) string) []T {
	out := []T{}
	for _, record := range records {
		if date(record) >= today {
			out = append(out, record)
		}
	}
	return out
}
