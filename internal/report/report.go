// Package report renders per-course attendance statistics as CSV or
// xlsx for teacher and admin downloads.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"campusattend/internal/statistics"
)

var header = []string{"Course", "Total", "Present", "Absent", "Justified", "Rate (%)"}

// WriteCSV writes one row per course, sorted by course name.
func WriteCSV(w io.Writer, byCourse map[string]statistics.Stats) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, name := range sortedCourses(byCourse) {
		st := byCourse[name]
		row := []string{
			name,
			fmt.Sprint(st.Total),
			fmt.Sprint(st.Present),
			fmt.Sprint(st.Absent),
			fmt.Sprint(st.Justified),
			fmt.Sprintf("%.1f", st.Rate),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a single-sheet workbook with the same rows.
func WriteXLSX(w io.Writer, title string, byCourse map[string]statistics.Stats) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Attendance"
	f.SetSheetName("Sheet1", sheet)

	if err := f.SetCellValue(sheet, "A1", title); err != nil {
		return err
	}
	for i, h := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	row := 3
	for _, name := range sortedCourses(byCourse) {
		st := byCourse[name]
		values := []any{name, st.Total, st.Present, st.Absent, st.Justified, st.Rate}
		for i, v := range values {
			cell, err := excelize.CoordinatesToCellName(i+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		row++
	}

	_, err := f.WriteTo(w)
	return err
}

func sortedCourses(byCourse map[string]statistics.Stats) []string {
	names := make([]string, 0, len(byCourse))
	for name := range byCourse {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
