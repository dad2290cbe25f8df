package schulmanager

import (
	"fmt"
	"strings"
	"testing"

	"schulmanager-online/internal/snapshot"

	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		in     string
		expect string
		ok     bool
	}{
		{in: "5.3.2025", expect: "2025-03-05", ok: true},
		{in: "05.03.2025", expect: "2025-03-05", ok: true},
		{in: "31.12.2024", expect: "2024-12-31", ok: true},
		{in: " 1.1.2026 ", expect: "2026-01-01", ok: true},
		{in: "31.2.2025", ok: false},
		{in: "5.3", ok: false},
		{in: "a.b.c", ok: false},
		{in: "", ok: false},
	}
	for _, test := range cases {
		t.Run(test.in, func(t *testing.T) {
			out, ok := normalizeDate(test.in)
			require.Equal(t, test.ok, ok)
			require.Equal(t, test.expect, out)
		})
	}
}

func TestWithYear(t *testing.T) {
	require.Equal(t, "12.11.2025", withYear("12.11", 2025))
	require.Equal(t, "12.11.2025", withYear("12.11.", 2025))
	require.Equal(t, "12.11.2026", withYear("12.11.2026", 2025))
}

func homeworkBlock(date string, subjects, tasks []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="tile-header">Mittwoch, %s
</div>`, date)
	for i := 0; i < max(len(subjects), len(tasks)); i++ {
		if i < len(subjects) {
			fmt.Fprintf(&b, `<h4 class="subject">%s</h4>`, subjects[i])
		}
		if i < len(tasks) {
			fmt.Fprintf(&b, `<span class="task">%s</span>`, tasks[i])
		}
	}
	return b.String()
}

func TestParseHomeworkBlock(t *testing.T) {
	items, ok := parseHomeworkBlock(homeworkBlock(
		"5.3.2025",
		[]string{"Mathe", "Deutsch"},
		[]string{"S. 12 Nr. 3", "Gedicht lernen", "Extra"},
	))
	require.True(t, ok)
	require.Equal(t, []snapshot.Homework{
		{Date: "2025-03-05", Subject: "Mathe", Task: "S. 12 Nr. 3", Description: "Mathe: S. 12 Nr. 3"},
		{Date: "2025-03-05", Subject: "Deutsch", Task: "Gedicht lernen", Description: "Deutsch: Gedicht lernen"},
	}, items)

	items, ok = parseHomeworkBlock(homeworkBlock(
		"5.3.2025",
		[]string{"Mathe", "Deutsch", "Englisch"},
		[]string{"S. 12 Nr. 3"},
	))
	require.True(t, ok)
	require.Len(t, items, 1)
	require.Equal(t, "Mathe", items[0].Subject)
}

func TestParseHomeworkBlockDiscarded(t *testing.T) {
	cases := map[string]string{
		"no date separator": `<h4 class="s">Mathe</h4><span class="t">Aufgabe</span>`,
		"invalid date":      homeworkBlock("kein Datum", []string{"Mathe"}, []string{"Aufgabe"}),
		"broken heading":    "Mittwoch, 5.3.2025\n<h4 class",
	}
	for name, block := range cases {
		t.Run(name, func(t *testing.T) {
			items, ok := parseHomeworkBlock(block)
			require.False(t, ok)
			require.Nil(t, items)
		})
	}
}

func examRow(subject, dateLine, begin, end string) string {
	return fmt.Sprintf(`class="exam-row"><td class="subject"><strong class="name">%s</strong></td>
<td class="date">
%s
<br> %s </br>- %s
</td></tr>`, subject, dateLine, begin, end)
}

func TestParseExamRow(t *testing.T) {
	exam, ok := parseExamRow(examRow("Mathe", "Do, 12.11.,", "08:00", "09:30"), 2025)
	require.True(t, ok)
	require.Equal(t, snapshot.Exam{
		Date:        "2025-11-12",
		Subject:     "Mathe",
		Time:        "08:00 - 09:30",
		Description: "08:00 - 09:30 Mathe",
	}, exam)
}

func TestParseExamRowWithoutTrailingDot(t *testing.T) {
	exam, ok := parseExamRow(examRow("Physik", "Mo, 12.11,", "10:00", "11:30"), 2025)
	require.True(t, ok)
	require.Equal(t, "2025-11-12", exam.Date)
	require.Equal(t, "10:00 - 11:30", exam.Time)
}

func TestParseExamRowKeepsExplicitYear(t *testing.T) {
	exam, ok := parseExamRow(examRow("Chemie", "Di, 13.1.2026,", "08:00", "08:45"), 2025)
	require.True(t, ok)
	require.Equal(t, "2026-01-13", exam.Date)
}

func TestParseExamRowDiscarded(t *testing.T) {
	cases := map[string]string{
		"no subject":    `class="r"><td>nothing here</td></tr>`,
		"empty subject": examRow("", "Do, 12.11.,", "08:00", "09:30"),
		"no date cell":  `class="r"><strong class="n">Mathe</strong></tr>`,
		"bad date":      examRow("Mathe", "Do, 45.11.,", "08:00", "09:30"),
	}
	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := parseExamRow(row, 2025)
			require.False(t, ok)
		})
	}
}

func regularCell(lesson, teacher, room string) string {
	return fmt.Sprintf(`<div class="lesson-cell"><span class="timetable-left"><a><b> %s </b></a></span>`+
		`<span class="timetable-right"><a><b><c><d><e>%s</e></d></c></b></a></span>`+
		`<span class="timetable-bottom"><a><b><c>%s</c></b></a></span></div></td>`, lesson, teacher, room)
}

func TestParseLessonCell(t *testing.T) {
	cases := []struct {
		name   string
		cell   string
		expect string
	}{
		{
			name:   "empty period",
			cell:   `<div class="empty"></div></td>`,
			expect: "",
		},
		{
			name:   "cancelled",
			cell:   `<div class="lesson-cell cancelled"><span class="timetable-left">Mathe</span><span class="timetable-right">Mu</span></div></td>`,
			expect: "<del>Mathe</del>",
		},
		{
			name:   "cancelled with nested label",
			cell:   `<div class="lesson-cell cancelled"><span class="timetable-left"><span>Deutsch</span></span><span class="timetable-right">Sm</span></td>`,
			expect: "<del>Deutsch</del>",
		},
		{
			name:   "changed",
			cell:   `<div class="lesson-cell"><span style="color: red;"> Mathe </span><span style="color: green;"> Physik </span></div></td>`,
			expect: "Mathe → Physik",
		},
		{
			name:   "changed without both colors",
			cell:   `<div class="lesson-cell"><span style="color: red;">Mathe</span></div></td>`,
			expect: "",
		},
		{
			name:   "regular",
			cell:   regularCell("Mathe", "Mu", "A1"),
			expect: "Mathe Mu A1",
		},
		{
			name:   "regular with broken markup",
			cell:   `<div class="lesson-cell"><span class="timetable-left">M</span></div></td>`,
			expect: "",
		},
		{
			name:   "only the cell before the closing tag counts",
			cell:   `<div></div></td><td><span>x</span>`,
			expect: "",
		},
	}
	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expect, parseLessonCell(test.cell))
		})
	}
}

func timetablePage(rows ...[]string) string {
	var b strings.Builder
	b.WriteString(`<class-hour-calendar><table class="calendar"><thead>`)
	b.WriteString(`<tr><th>Stunde</th><th>Mo</th><th>Di</th><th>Mi</th><th>Do</th><th>Fr</th><th>Sa</th><th>So</th></tr>`)
	b.WriteString(`<tr><th>Zeit</th></tr></thead><tbody>`)
	for i, row := range rows {
		fmt.Fprintf(&b, `<tr><th>%d</th>`, i+1)
		for _, cell := range row {
			b.WriteString("<td>")
			b.WriteString(cell)
		}
		b.WriteString("</tr>")
	}
	b.WriteString(`</tbody></table></class-hour-calendar>`)
	return b.String()
}

func TestParseTimetable(t *testing.T) {
	page := timetablePage(
		[]string{regularCell("Mathe", "Mu", "A1"), "</td>", regularCell("Deutsch", "Sm", "B2"), "</td>", "</td>", "</td>", "</td>"},
		[]string{regularCell("Sport", "Kl", "TH"), "</td>"},
	)

	week, ok := parseTimetable(page)
	require.True(t, ok)
	require.Len(t, week, snapshot.DaysPerWeek)
	require.Equal(t, []string{"Mathe Mu A1", "Sport Kl TH"}, week[0])
	require.Equal(t, []string{"", ""}, week[1])
	require.Equal(t, []string{"Deutsch Sm B2"}, week[2])
	require.Equal(t, []string{""}, week[6])
}

func TestParseTimetableAlwaysSevenDays(t *testing.T) {
	week, ok := parseTimetable(timetablePage())
	require.True(t, ok)
	require.Len(t, week, snapshot.DaysPerWeek)
	for _, day := range week {
		require.Empty(t, day)
	}

	_, ok = parseTimetable("<html><body>keine Tabelle</body></html>")
	require.False(t, ok)
}
