package commands

import (
	"fmt"
	"os"
	"strings"

	"schulmanager-online/internal/sensor"
	"schulmanager-online/internal/snapshot"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/jedib0t/go-pretty/v6/table"
)

var converter = newConverter()

func newConverter() *md.Converter {
	c := md.NewConverter("", true, nil)
	c.Use(plugin.Strikethrough("~~"))
	return c
}

// renderLesson turns the markup of a timetable entry (cancelled lessons are
// wrapped in <del>) into terminal friendly markdown.
func renderLesson(lesson string) string {
	if !strings.Contains(lesson, "<") {
		return lesson
	}
	rendered, err := converter.ConvertString(lesson)
	if err != nil {
		return lesson
	}
	return rendered
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func formatState(state *int) string {
	if state == nil {
		return "unknown"
	}
	return fmt.Sprint(*state)
}

func renderSensors(sensors []sensor.Sensor) {
	t := newTable()
	t.SetTitle("Sensors")
	t.AppendHeader(table.Row{"Entity", "Name", "State", "Available"})
	for _, s := range sensors {
		t.AppendRow(table.Row{s.EntityID, s.Name, formatState(s.State), s.Available})
	}
	t.Render()
}

func renderLetters(letters []snapshot.Letter) {
	t := newTable()
	t.SetTitle("Letters")
	t.AppendHeader(table.Row{"ID", "Title", "Created", "Read"})
	for _, l := range letters {
		t.AppendRow(table.Row{l.ID, l.Title, l.CreatedAt, l.Read})
	}
	t.Render()
}

func renderHomework(homework []snapshot.Homework) {
	t := newTable()
	t.SetTitle("Homework")
	t.AppendHeader(table.Row{"Date", "Subject", "Task"})
	for _, h := range homework {
		t.AppendRow(table.Row{h.Date, h.Subject, h.Task})
	}
	t.Render()
}

func renderExams(exams []snapshot.Exam) {
	t := newTable()
	t.SetTitle("Exams")
	t.AppendHeader(table.Row{"Date", "Time", "Subject"})
	for _, e := range exams {
		t.AppendRow(table.Row{e.Date, e.Time, e.Subject})
	}
	t.Render()
}

var weekdayHeader = table.Row{"#", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// timetableRows lays the day lists out as one row per period.
func timetableRows(timetable snapshot.Timetable) []table.Row {
	periods := 0
	for _, day := range timetable {
		periods = max(periods, len(day))
	}

	rows := make([]table.Row, 0, periods)
	for period := 0; period < periods; period++ {
		row := table.Row{period + 1}
		for i := 0; i < snapshot.DaysPerWeek; i++ {
			lessons := timetable.Day(i)
			cell := ""
			if period < len(lessons) {
				cell = renderLesson(lessons[period])
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	return rows
}

func renderTimetable(timetable snapshot.Timetable) {
	t := newTable()
	t.SetTitle("Timetable")
	t.AppendHeader(weekdayHeader)
	t.AppendRows(timetableRows(timetable))
	t.Render()
}
