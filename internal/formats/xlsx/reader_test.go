package xlsx

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/klytics/gsdkit/internal/layout"
	"github.com/klytics/gsdkit/internal/record"
)

// serial is the Excel serial number of 2012-09-01.
const serial = 41153

func writeFixture(t *testing.T, sheets ...Sheet) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.xlsx")
	if err := WriteFile(path, sheets...); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func mustLayout(t *testing.T, doc string) *layout.Layout {
	t.Helper()
	l, err := layout.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("layout.Parse failed: %v", err)
	}
	return l
}

func collect(t *testing.T, it *RowIterator) []RawRow {
	t.Helper()
	var rows []RawRow
	for it.Next() {
		rows = append(rows, it.Row())
	}
	return rows
}

// windowSheet has a title in row 1, data in rows 3..8, a blank row 6 and
// a trailer in row 10.
func windowSheet() Sheet {
	rows := make([][]any, 10)
	rows[0] = []any{"GAS SENDOUT REPORT"}
	for r := 3; r <= 8; r++ {
		if r == 6 {
			continue
		}
		rows[r-1] = []any{serial + r, "ignored", "1,234"}
	}
	rows[9] = []any{"TOTAL", nil, 99999}
	return Sheet{Name: "LNG Facilities", Rows: rows}
}

const windowLayout = `
name: window
sheet: LNG Facilities
rows: {start: 3, end: 8}
date_column: date
columns:
  - {ref: A, name: date}
  - {ref: C, name: X__FLOW}
classifier:
  mode: declared
  attributes:
    X__FLOW: {entity: X, measure: FLOW}
`

func TestExtract_Window(t *testing.T) {
	wb, err := Open(writeFixture(t, windowSheet()))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer wb.Close()

	it, err := wb.Extract(mustLayout(t, windowLayout))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	defer it.Close()

	rows := collect(t, it)
	if err := it.Err(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}

	var positions []int
	for _, r := range rows {
		positions = append(positions, r.Position)
	}
	if want := []int{3, 4, 5, 6, 7, 8}; !reflect.DeepEqual(positions, want) {
		t.Fatalf("expected positions %v, got %v", want, positions)
	}

	if got := rows[0].Cells["date"]; got != "41156" {
		t.Errorf("expected raw serial 41156, got %q", got)
	}
	if got := rows[0].Cells["X__FLOW"]; got != "1,234" {
		t.Errorf("expected raw text '1,234', got %q", got)
	}
	if _, ok := rows[0].Cells["ignored"]; ok {
		t.Error("undeclared column leaked into the row")
	}
	if got := rows[3].Cells["date"]; got != "" {
		t.Errorf("expected blank row 6 to have an empty date, got %q", got)
	}
	if want := []string{"X__FLOW"}; !reflect.DeepEqual(it.ValueColumns(), want) {
		t.Errorf("expected value columns %v, got %v", want, it.ValueColumns())
	}
}

func TestExtract_SheetNotFound(t *testing.T) {
	wb, err := Open(writeFixture(t, Sheet{Name: "Other", Rows: [][]any{{1}}}))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer wb.Close()

	_, err = wb.Extract(mustLayout(t, windowLayout))
	var notFound *SheetNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *SheetNotFoundError, got %v", err)
	}
	if notFound.Sheet != "LNG Facilities" || !reflect.DeepEqual(notFound.Available, []string{"Other"}) {
		t.Errorf("unexpected error fields: %+v", notFound)
	}
}

const wideLayout = `
name: wide
sheet: LNG Facilities
rows: {start: 3, end: 8}
date_column: date
columns:
  - {ref: A, name: date}
  - {ref: Z, name: Z__FLOW}
classifier:
  mode: declared
  attributes:
    Z__FLOW: {entity: Z, measure: FLOW}
`

func TestExtract_ColumnOutsideSheet(t *testing.T) {
	wb, err := Open(writeFixture(t, windowSheet()))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer wb.Close()

	it, err := wb.Extract(mustLayout(t, wideLayout))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	defer it.Close()

	collect(t, it)
	var layoutErr *LayoutError
	if !errors.As(it.Err(), &layoutErr) {
		t.Fatalf("expected *LayoutError after iteration, got %v", it.Err())
	}
}

func setDimension(t *testing.T, path, sheet, ref string) {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	if err := f.SetSheetDimension(sheet, ref); err != nil {
		t.Fatalf("SetSheetDimension failed: %v", err)
	}
	if err := f.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func TestExtract_ColumnOutsideDimension(t *testing.T) {
	path := writeFixture(t, windowSheet())
	setDimension(t, path, "LNG Facilities", "A1:C10")

	wb, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer wb.Close()

	_, err = wb.Extract(mustLayout(t, wideLayout))
	var layoutErr *LayoutError
	if !errors.As(err, &layoutErr) {
		t.Fatalf("expected *LayoutError up front, got %v", err)
	}
}

// A declared column inside the sheet dimension that is blank for the whole
// window reads as empty cells, not as a column outside the sheet.
func TestExtract_BlankColumnInsideDimension(t *testing.T) {
	rows := make([][]any, 12)
	for r := 3; r <= 8; r++ {
		rows[r-1] = []any{serial + r, "ignored"}
	}
	rows[11] = []any{nil, nil, "* reserve not reported this year"}
	path := writeFixture(t, Sheet{Name: "LNG Facilities", Rows: rows})
	setDimension(t, path, "LNG Facilities", "A1:C12")

	wb, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer wb.Close()

	it, err := wb.Extract(mustLayout(t, windowLayout))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	defer it.Close()

	got := collect(t, it)
	if err := it.Err(); err != nil {
		t.Fatalf("expected no error for a blank declared column, got %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("expected 6 rows, got %d", len(got))
	}
	for _, r := range got {
		if v, ok := r.Cells["X__FLOW"]; !ok || v != "" {
			t.Errorf("row %d: expected empty X__FLOW, got %q (present=%v)", r.Position, v, ok)
		}
	}
}

func stationSheet() Sheet {
	return Sheet{
		Name: "M&R Stations",
		Rows: [][]any{
			{"M&R STATIONS"},
			{" Date ", "0-30", "BTU", "WHITMAN", "BTU", "CHECK NUMBER", "", "CHECK NUMBER"},
			{serial, 10, 1.03, 20, 1.04, 0, "", 0},
		},
	}
}

func TestExtract_HeaderColumns(t *testing.T) {
	l := mustLayout(t, `
name: stations
sheet: M&R Stations
header_row: 2
rows: {start: 3, end: 3}
date_column: date
columns:
  - {header: DATE, name: date}
  - {header: btu, occurrence: 2, name: BTU.1}
  - {header: 0-30, name: 0-30}
classifier:
  mode: heuristic
`)
	wb, err := Open(writeFixture(t, stationSheet()))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer wb.Close()

	it, err := wb.Extract(l)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	defer it.Close()

	rows := collect(t, it)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	want := map[string]string{"date": "41153", "BTU.1": "1.04", "0-30": "10"}
	if !reflect.DeepEqual(rows[0].Cells, want) {
		t.Errorf("expected %v, got %v", want, rows[0].Cells)
	}
}

func TestExtract_HeaderNotFound(t *testing.T) {
	l := mustLayout(t, `
name: stations
sheet: M&R Stations
header_row: 2
rows: {start: 3, end: 3}
date_column: date
columns:
  - {header: DATE, name: date}
  - {header: PENROSE, name: PENROSE}
classifier:
  mode: heuristic
`)
	wb, err := Open(writeFixture(t, stationSheet()))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer wb.Close()

	_, err = wb.Extract(l)
	var layoutErr *LayoutError
	if !errors.As(err, &layoutErr) {
		t.Fatalf("expected *LayoutError, got %v", err)
	}
}

func TestExtract_AutoColumns(t *testing.T) {
	l := mustLayout(t, `
name: condensed
sheet: M&R Stations
header_row: 2
auto_columns: true
skip_headers: [CHECK NUMBER, CHECK NUMBER.1]
rows: {start: 3, end: 3}
date_column: Date
classifier:
  mode: heuristic
`)
	wb, err := Open(writeFixture(t, stationSheet()))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer wb.Close()

	it, err := wb.Extract(l)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	defer it.Close()

	want := []string{"0-30", "BTU", "WHITMAN", "BTU.1"}
	if got := it.ValueColumns(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected value columns %v, got %v", want, got)
	}
}

func TestOpen_NotFound(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.xlsx")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWriteRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	records := []record.NormalizedRecord{
		{Date: time.Date(2012, 9, 1, 0, 0, 0, 0, time.UTC), Entity: "RICHMOND", Pipeline: record.PipelineUnknown,
			Measure: "BOILOFF", Value: record.Float(1234), FiscalYear: 2013, SourceYearHint: 2013},
		{Date: time.Date(2012, 9, 2, 0, 0, 0, 0, time.UTC), Entity: "RICHMOND", Pipeline: record.PipelineUnknown,
			Measure: "BOILOFF", FiscalYear: 2013, SourceYearHint: 2013},
	}
	if err := WriteRecords(path, "LNG", records); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("LNG", excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if !reflect.DeepEqual(rows[0], record.Columns) {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "41153" || rows[1][4] != "1234" {
		t.Errorf("unexpected first row %v", rows[1])
	}
	if len(rows[2]) > 4 && rows[2][4] != "" {
		t.Errorf("expected empty value cell for a missing value, got %q", rows[2][4])
	}
}
