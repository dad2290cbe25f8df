package export

import (
	"fmt"
	"io"

	"schulmanager-online/internal/snapshot"

	"github.com/tealeg/xlsx/v3"
)

const timetableSheet = "Timetable"

var dayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// TimetableWorkbook lays the timetable out as one sheet with a header row of
// day names followed by one row per lesson period.
func TimetableWorkbook(timetable snapshot.Timetable) (*xlsx.File, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(timetableSheet)
	if err != nil {
		return nil, err
	}

	header := sheet.AddRow()
	header.AddCell().SetString("Period")
	for _, name := range dayNames {
		header.AddCell().SetString(name)
	}

	periods := 0
	for _, day := range timetable {
		periods = max(periods, len(day))
	}
	for period := 0; period < periods; period++ {
		row := sheet.AddRow()
		row.AddCell().SetInt(period + 1)
		for i := range dayNames {
			lessons := timetable.Day(i)
			value := ""
			if period < len(lessons) {
				value = lessons[period]
			}
			row.AddCell().SetString(value)
		}
	}

	return file, nil
}

func WriteTimetable(w io.Writer, timetable snapshot.Timetable) error {
	file, err := TimetableWorkbook(timetable)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	err = file.Write(w)
	if err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
