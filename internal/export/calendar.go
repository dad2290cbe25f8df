// Package export renders snapshots into files other tools understand.
package export

import (
	"fmt"
	"strings"
	"time"

	"schulmanager-online/internal/components/chrono"
	"schulmanager-online/internal/snapshot"

	ics "github.com/arran4/golang-ical"
)

const (
	productID = "-//schulmanager-online//calendar//DE"
	uidDomain = "schulmanager-online"
)

// Calendar renders homework as all day events and exams as timed events in
// the location of clock. Exams whose time range cannot be read become all day
// events, records with an unreadable date are left out.
func Calendar(snap *snapshot.Snapshot, clock chrono.TimeAPI) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("Schulmanager Online")
	cal.SetXWRTimezone(clock.Location().String())

	if snap == nil {
		return cal.Serialize()
	}

	stamp := clock.Now()
	loc := clock.Location()

	for i, homework := range snap.Homework {
		day, err := time.ParseInLocation(time.DateOnly, homework.Date, loc)
		if err != nil {
			continue
		}
		event := cal.AddEvent(fmt.Sprintf("homework-%s-%d@%s", homework.Date, i, uidDomain))
		event.SetDtStampTime(stamp)
		event.SetSummary(fmt.Sprintf("%s: %s", homework.Subject, homework.Task))
		if homework.Description != "" {
			event.SetDescription(homework.Description)
		}
		event.SetAllDayStartAt(day)
		event.SetAllDayEndAt(day.AddDate(0, 0, 1))
	}

	for i, exam := range snap.Exams {
		day, err := time.ParseInLocation(time.DateOnly, exam.Date, loc)
		if err != nil {
			continue
		}
		event := cal.AddEvent(fmt.Sprintf("exam-%s-%d@%s", exam.Date, i, uidDomain))
		event.SetDtStampTime(stamp)
		event.SetSummary(exam.Subject)
		if exam.Description != "" {
			event.SetDescription(exam.Description)
		}

		start, end, ok := examRange(day, exam.Time)
		if ok {
			event.SetStartAt(start)
			event.SetEndAt(end)
			continue
		}
		event.SetAllDayStartAt(day)
		event.SetAllDayEndAt(day.AddDate(0, 0, 1))
	}

	return cal.Serialize()
}

// examRange reads "HH:MM - HH:MM" on the given day.
func examRange(day time.Time, span string) (time.Time, time.Time, bool) {
	rawStart, rawEnd, found := strings.Cut(span, "-")
	if !found {
		return time.Time{}, time.Time{}, false
	}
	start, ok := clockOn(day, rawStart)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	end, ok := clockOn(day, rawEnd)
	if !ok || !end.After(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func clockOn(day time.Time, raw string) (time.Time, bool) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(
		day.Year(), day.Month(), day.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0,
		day.Location(),
	), true
}
