package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dukerupert/daybook/internal/model"
)

// MonthWorkbook builds a sheet with one row per day of mk.
func MonthWorkbook(mk model.MonthKey, month model.Month) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := mk.String()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	f.SetColWidth(sheet, "A", "A", 12)
	f.SetColWidth(sheet, "B", "B", 12)
	f.SetColWidth(sheet, "C", "C", 14)
	f.SetColWidth(sheet, "D", "D", 28)
	f.SetColWidth(sheet, "E", "E", 60)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}

	headers := []string{"Date", "Weekday", "Status", "Reason", "Activities"}
	for i, h := range headers {
		f.SetCellValue(sheet, cell(i+1, 1), h)
	}
	f.SetCellStyle(sheet, "A1", cell(len(headers), 1), headerStyle)

	for d := 1; d <= mk.DaysIn(); d++ {
		key := mk.Day(d)
		rec := month.Day(d)
		row := d + 1

		reason := ""
		if rec.Reason != nil {
			reason = *rec.Reason
		}
		f.SetCellValue(sheet, cell(1, row), key.String())
		f.SetCellValue(sheet, cell(2, row), key.Weekday().String())
		f.SetCellValue(sheet, cell(3, row), string(rec.Status))
		f.SetCellValue(sheet, cell(4, row), reason)
		f.SetCellValue(sheet, cell(5, row), activityLines(rec))
	}
	return f, nil
}

func activityLines(rec model.DayRecord) string {
	var lines []string
	for _, a := range rec.SortedActivities() {
		state := "pending"
		if a.Approved {
			state = "approved"
		}
		line := fmt.Sprintf("%s-%s %s (%s)", a.StartTime, a.EndTime, a.Title, state)
		if a.BookedBy != nil {
			line += " - " + a.BookedBy.Name + " <" + a.BookedBy.Email + ">"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
