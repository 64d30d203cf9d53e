// Package fixture builds synthetic GSD report workbooks shaped like the
// built-in lng-facilities layout: a title block, one row per gas day of the
// fiscal year, and a TOTAL divider at every month end.
package fixture

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/klytics/gsdkit/internal/formats/xlsx"
)

// Sheet is the sheet name of the LNG facilities report.
const Sheet = "LNG Facilities"

const (
	firstRow = 8
	lastRow  = 384
)

// Borders are the divider rows of the LNG facilities sheet.
var Borders = []int{38, 70, 101, 133, 165, 195, 227, 258, 290, 321, 353}

// value columns, 1-indexed: E H I K L U V X Y
var valueCols = []int{5, 8, 9, 11, 12, 21, 22, 24, 25}

// FileName returns the report file name for a fiscal year.
func FileName(fy int) string {
	return fmt.Sprintf("GSD REPORT FY%d.xlsx", fy)
}

// LNGFacilities returns the report sheet of fiscal year fy. Every seventh
// day leaves PASSYUNK reserve blank and every tenth day writes the
// Richmond inventory as thousands-separated text, as hand-keyed cells do.
func LNGFacilities(fy int) xlsx.Sheet {
	rows := make([][]any, lastRow)
	rows[0] = []any{fmt.Sprintf("GSD REPORT FY%d", fy)}
	rows[1] = []any{"LNG FACILITIES — DAILY ACTIVITY (MCF)"}
	header := make([]any, 25)
	header[0] = "DATE"
	for i, name := range []string{"LIQUEFACTION", "BOILOFF", "VAPORIZATION", "TRUCKING", "INVENTORY", "BOILOFF", "VAPORIZATION", "RESERVED", "INVENTORY"} {
		header[valueCols[i]-1] = name
	}
	rows[6] = header

	border := make(map[int]bool, len(Borders))
	for _, r := range Borders {
		border[r] = true
	}

	day := time.Date(fy-1, time.September, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(fy, time.September, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	for pos := firstRow; pos <= lastRow; pos++ {
		if border[pos] {
			rows[pos-1] = []any{"TOTAL"}
			continue
		}
		if !day.Before(end) {
			continue
		}
		rows[pos-1] = dataRow(day, n)
		day = day.AddDate(0, 0, 1)
		n++
	}
	return xlsx.Sheet{Name: Sheet, Rows: rows}
}

func dataRow(day time.Time, n int) []any {
	row := make([]any, 25)
	row[0] = day
	for i, col := range valueCols {
		row[col-1] = float64((n*7+i*13)%500) + 0.5
	}
	if n%7 == 0 {
		row[24-1] = nil
	}
	if n%10 == 0 {
		row[12-1] = fmt.Sprintf("%d,%03d", 1+n%9, n%1000)
	}
	return row
}

// Days returns the number of gas days in fiscal year fy.
func Days(fy int) int {
	start := time.Date(fy-1, time.September, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(fy, time.September, 1, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

// WriteReport writes the fiscal year fy report into dir and returns its path.
func WriteReport(dir string, fy int) (string, error) {
	path := filepath.Join(dir, FileName(fy))
	if err := xlsx.WriteFile(path, LNGFacilities(fy)); err != nil {
		return "", err
	}
	return path, nil
}
