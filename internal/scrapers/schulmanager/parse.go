package schulmanager

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"schulmanager-online/internal/snapshot"
	"schulmanager-online/pkg/htmlutil"
)

// normalizeDate turns D.M.YYYY into YYYY-MM-DD, it fails for anything that
// is not a real calendar date.
func normalizeDate(s string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return "", false
	}
	var numbers [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return "", false
		}
		numbers[i] = n
	}
	day, month, year := numbers[0], numbers[1], numbers[2]

	formatted := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	_, err := time.Parse(time.DateOnly, formatted)
	if err != nil {
		return "", false
	}
	return formatted, true
}

// withYear appends year to a D.M. date token that has no four digit year.
//
// Dates are assumed to be in the current year, so an exam in January read in
// December ends up a year early.
func withYear(token string, year int) string {
	parts := strings.Split(token, ".")
	if len(parts) == 3 && len(strings.TrimSpace(parts[2])) == 4 {
		return token
	}
	if !strings.HasSuffix(token, ".") {
		token += "."
	}
	return fmt.Sprintf("%s%d", token, year)
}

func textAfterFirstTag(chunk string) (string, bool) {
	return htmlutil.Frag(chunk).Field(">", 1).UpTo("<").Value()
}

// parseHomeworkBlock reads one homework tile. The tile carries one date and
// a heading per subject, each followed by the task text in a span. The
// block is discarded as a whole when any piece cannot be extracted.
func parseHomeworkBlock(block string) ([]snapshot.Homework, bool) {
	rawDate, ok := htmlutil.Frag(block).After(", ").UpTo("\n").Value()
	if !ok {
		return nil, false
	}

	var subjects []string
	for _, chunk := range htmlutil.Chunks(block, "<h4 ") {
		subject, ok := textAfterFirstTag(chunk)
		if !ok {
			return nil, false
		}
		subjects = append(subjects, subject)
	}

	var tasks []string
	for _, chunk := range htmlutil.Chunks(block, "<span ") {
		task, ok := textAfterFirstTag(chunk)
		if !ok {
			return nil, false
		}
		tasks = append(tasks, task)
	}

	date, ok := normalizeDate(rawDate)
	if !ok {
		return nil, false
	}

	items := make([]snapshot.Homework, 0, min(len(subjects), len(tasks)))
	for i, subject := range subjects {
		if i >= len(tasks) {
			break
		}
		items = append(items, snapshot.Homework{
			Date:        date,
			Subject:     subject,
			Task:        tasks[i],
			Description: fmt.Sprintf("%s: %s", subject, tasks[i]),
		})
	}
	return items, true
}

// parseExamRow reads one row of the exam table on the dashboard.
func parseExamRow(row string, year int) (snapshot.Exam, bool) {
	subject, ok := htmlutil.Frag(row).
		After("<strong ").
		Field(">", 1).
		UpTo("<").
		NonEmpty()
	if !ok {
		return snapshot.Exam{}, false
	}

	afterSubject := htmlutil.Frag(row).After(subject)
	token, ok := afterSubject.
		After("<td ").
		Field(">", 1).
		Field("\n", 1).
		After(", ").
		UpTo(",").
		NonEmpty()
	if !ok {
		return snapshot.Exam{}, false
	}
	date, ok := normalizeDate(withYear(token, year))
	if !ok {
		return snapshot.Exam{}, false
	}

	timeSection := afterSubject.After(token)
	begin, ok := timeSection.
		After("<br").
		Field(">", 1).
		UpTo("<").
		RemoveWhitespace().
		Value()
	if !ok {
		return snapshot.Exam{}, false
	}
	end, ok := timeSection.After("- ").UpTo("\n").TrimSpace().Value()
	if !ok {
		return snapshot.Exam{}, false
	}

	fullTime := fmt.Sprintf("%s - %s", begin, end)
	return snapshot.Exam{
		Date:        date,
		Subject:     subject,
		Time:        fullTime,
		Description: fmt.Sprintf("%s %s", fullTime, subject),
	}, true
}

const (
	markerCancelled = `lesson-cell cancelled">`
	markerColored   = `<span style="color`
	markerLeft      = `timetable-left">`
	markerRight     = `timetable-right">`
	markerBottom    = `timetable-bottom">`
)

// parseLessonCell renders one timetable cell:
//   - "" for an empty period
//   - "<del>LESSON</del>" for a cancelled lesson
//   - "OLD → NEW" for a changed lesson
//   - "LESSON TEACHER ROOM" otherwise
//
// Anything unexpected renders as "".
func parseLessonCell(cell string) string {
	content := htmlutil.Frag(cell).UpTo("</td>")

	switch {
	case !content.Contains("span"):
		return ""

	case content.Contains("lesson-cell cancelled"):
		lesson, ok := content.
			After(markerCancelled).
			After(markerLeft).
			UpTo("timetable-right").
			LeadingText().
			NonEmpty()
		if !ok {
			return ""
		}
		return fmt.Sprintf("<del>%s</del>", lesson)

	case content.Contains(markerColored) && !content.Contains("Inter"):
		if !content.Contains(`red;">`) || !content.Contains(`green;">`) {
			return ""
		}
		old, okOld := content.After(`red;">`).UpTo("<").TrimSpace().Value()
		replacement, okNew := content.After(`green;">`).UpTo("<").TrimSpace().Value()
		if !okOld || !okNew {
			return ""
		}
		return fmt.Sprintf("%s → %s", old, replacement)

	default:
		lesson, okLesson := content.
			After(markerLeft).
			UpTo("timetable-right").
			Field(">", 2).
			UpTo("<").
			RemoveWhitespace().
			Value()
		teacher, okTeacher := content.
			After(markerRight).
			UpTo("timetable-bottom").
			Field(">", 5).
			UpTo("<").
			RemoveWhitespace().
			Value()
		room, okRoom := content.
			After(markerBottom).
			Field(">", 3).
			UpTo("<").
			RemoveWhitespace().
			Value()
		if !okLesson || !okTeacher || !okRoom {
			return ""
		}
		return strings.TrimSpace(fmt.Sprintf("%s %s %s", lesson, teacher, room))
	}
}

// parseTimetable reads the weekly schedule table. Everything up to the end of
// the header row is skipped, each further row is one period whose plain <td>
// cells are the weekdays, Monday first.
func parseTimetable(page string) (snapshot.Timetable, bool) {
	table, ok := htmlutil.Frag(page).After("<table").UpTo("</table>").Value()
	if !ok {
		return nil, false
	}
	rows := strings.Split(table, "<tr>")
	if len(rows) < 2 {
		return nil, false
	}
	rows = rows[2:]

	week := snapshot.NewTimetable()
	for _, row := range rows {
		columns := strings.Split(row, "<td>")
		if len(columns) <= 1 {
			continue
		}
		cells := columns[1:]
		if len(cells) > snapshot.DaysPerWeek {
			cells = cells[:snapshot.DaysPerWeek]
		}
		for day, cell := range cells {
			week[day] = append(week[day], parseLessonCell(cell))
		}
	}
	return week, true
}
