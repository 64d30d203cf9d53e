// Package xlsx reads fixed-layout report sheets out of .xlsx workbooks and
// writes consolidated record tables back to .xlsx.
package xlsx

import (
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/klytics/gsdkit/internal/layout"
)

// Workbook is an open .xlsx file. Callers must Close it.
type Workbook struct {
	Path string
	f    *excelize.File
}

// Open opens an .xlsx workbook for extraction.
func Open(path string) (*Workbook, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s — check that the path is correct", path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s — is this a valid .xlsx file? %w", path, err)
	}
	return &Workbook{Path: path, f: f}, nil
}

// Close releases the workbook and any temporary files excelize created.
func (wb *Workbook) Close() error {
	return wb.f.Close()
}

// SheetNames returns the workbook's sheet names in tab order.
func (wb *Workbook) SheetNames() []string {
	return wb.f.GetSheetList()
}

// RawRow is one physical sheet row restricted to the layout's columns.
// Cells holds the unformatted cell text keyed by semantic column name.
type RawRow struct {
	Position int
	Cells    map[string]string
}

type resolvedColumn struct {
	name  string
	index int // 0-based
}

// RowIterator streams the rows of a layout's window in physical order.
// Column bounds are verified up front against the sheet dimension. When the
// sheet has none they are verified against the widest row once the window
// has been read; the failure then surfaces from Err.
type RowIterator struct {
	sheet      string
	rows       *excelize.Rows
	window     layout.Window
	dateColumn string
	cols       []resolvedColumn

	pos     int  // physical row last read
	width   int  // widest row read so far
	maxRef  int  // widest column the layout needs
	bounded bool // maxRef already verified against the sheet dimension
	cur     RawRow
	err     error
	done    bool
}

// Extract opens the layout's sheet and resolves its columns. Header rows
// are consumed here; the returned iterator starts at the window.
func (wb *Workbook) Extract(l *layout.Layout) (*RowIterator, error) {
	if idx, err := wb.f.GetSheetIndex(l.Sheet); err != nil || idx < 0 {
		return nil, &SheetNotFoundError{Path: wb.Path, Sheet: l.Sheet, Available: wb.SheetNames()}
	}

	rows, err := wb.f.Rows(l.Sheet)
	if err != nil {
		return nil, fmt.Errorf("could not read sheet %q of %s: %w", l.Sheet, wb.Path, err)
	}

	it := &RowIterator{
		sheet:      l.Sheet,
		rows:       rows,
		window:     l.Rows,
		dateColumn: l.DateColumn,
	}
	if err := it.resolve(l); err != nil {
		rows.Close()
		return nil, err
	}

	if dim, err := wb.f.GetSheetDimension(l.Sheet); err == nil {
		if w := dimensionWidth(dim); w > 0 {
			if it.maxRef > w {
				rows.Close()
				return nil, it.boundsError(w)
			}
			it.bounded = true
		}
	}
	return it, nil
}

func (it *RowIterator) resolve(l *layout.Layout) error {
	var headers []string
	if l.HeaderRow > 0 {
		for it.pos < l.HeaderRow {
			cells, ok, err := it.read()
			if err != nil {
				return err
			}
			if !ok {
				return layoutErrorf(l.Sheet, "header row %d is past the end of the sheet", l.HeaderRow)
			}
			headers = cells
		}
		for i := range headers {
			headers[i] = strings.TrimSpace(headers[i])
		}
	}

	if l.AutoColumns {
		for i, name := range suffixDuplicates(headers) {
			if name == "" || l.Skipped(name) {
				continue
			}
			it.add(name, i)
		}
		if !it.hasColumn(l.DateColumn) {
			return layoutErrorf(l.Sheet, "date column %q not found in header row %d", l.DateColumn, l.HeaderRow)
		}
		return nil
	}

	for _, c := range l.Columns {
		if c.Ref != "" {
			n, err := excelize.ColumnNameToNumber(c.Ref)
			if err != nil {
				return layoutErrorf(l.Sheet, "column %q has an invalid ref %q", c.Name, c.Ref)
			}
			it.add(c.Name, n-1)
			continue
		}

		idx := findHeader(headers, c.Header, c.Occurrence)
		if idx < 0 {
			return layoutErrorf(l.Sheet, "header %q (occurrence %d) not found in row %d — found %v",
				c.Header, max(c.Occurrence, 1), l.HeaderRow, nonBlank(headers))
		}
		it.add(c.Name, idx)
	}
	return nil
}

func (it *RowIterator) add(name string, index int) {
	it.cols = append(it.cols, resolvedColumn{name: name, index: index})
	if index+1 > it.maxRef {
		it.maxRef = index + 1
	}
}

func (it *RowIterator) hasColumn(name string) bool {
	for _, c := range it.cols {
		if c.name == name {
			return true
		}
	}
	return false
}

// Columns returns the resolved semantic column names in layout order.
func (it *RowIterator) Columns() []string {
	names := make([]string, len(it.cols))
	for i, c := range it.cols {
		names[i] = c.name
	}
	return names
}

// ValueColumns returns the resolved column names other than the date column.
func (it *RowIterator) ValueColumns() []string {
	names := make([]string, 0, len(it.cols))
	for _, c := range it.cols {
		if c.name != it.dateColumn {
			names = append(names, c.name)
		}
	}
	return names
}

// Next advances to the next row of the window.
func (it *RowIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}

	for it.pos < it.window.End {
		cells, ok, err := it.read()
		if err != nil {
			it.err = err
			return false
		}
		if !ok {
			break
		}
		if it.pos < it.window.Start {
			continue
		}
		it.cur = it.project(cells)
		return true
	}

	it.done = true
	// Rows omit trailing empty cells, so the observed width only stands in
	// for a missing dimension.
	if !it.bounded && it.maxRef > it.width {
		it.err = it.boundsError(it.width)
	}
	return false
}

// Row returns the current row.
func (it *RowIterator) Row() RawRow {
	return it.cur
}

// Err returns the first error hit while iterating.
func (it *RowIterator) Err() error {
	return it.err
}

// Close releases the sheet stream.
func (it *RowIterator) Close() error {
	return it.rows.Close()
}

func (it *RowIterator) read() ([]string, bool, error) {
	if !it.rows.Next() {
		if err := it.rows.Error(); err != nil {
			return nil, false, fmt.Errorf("could not read sheet %q after row %d: %w", it.sheet, it.pos, err)
		}
		return nil, false, nil
	}
	it.pos++

	cells, err := it.rows.Columns(excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, false, fmt.Errorf("could not read row %d of sheet %q: %w", it.pos, it.sheet, err)
	}
	if len(cells) > it.width {
		it.width = len(cells)
	}
	return cells, true, nil
}

func (it *RowIterator) project(cells []string) RawRow {
	row := RawRow{Position: it.pos, Cells: make(map[string]string, len(it.cols))}
	for _, c := range it.cols {
		if c.index < len(cells) {
			row.Cells[c.name] = cells[c.index]
		} else {
			row.Cells[c.name] = ""
		}
	}
	return row
}

func (it *RowIterator) boundsError(width int) *LayoutError {
	var outside []string
	for _, c := range it.cols {
		if c.index+1 > width {
			name, _ := excelize.ColumnNumberToName(c.index + 1)
			outside = append(outside, fmt.Sprintf("%s (%s)", c.name, name))
		}
	}
	last := "none"
	if width > 0 {
		last, _ = excelize.ColumnNumberToName(width)
	}
	return layoutErrorf(it.sheet, "columns %v are outside the sheet, whose last used column is %s",
		outside, last)
}

// findHeader returns the 0-based index of the nth (1-based) header equal to
// text, ignoring case and surrounding space, or -1.
func findHeader(headers []string, text string, occurrence int) int {
	if occurrence < 1 {
		occurrence = 1
	}
	text = strings.TrimSpace(text)
	seen := 0
	for i, h := range headers {
		if strings.EqualFold(h, text) {
			seen++
			if seen == occurrence {
				return i
			}
		}
	}
	return -1
}

// suffixDuplicates names repeated headers "H", "H.1", "H.2" in order.
func suffixDuplicates(headers []string) []string {
	out := make([]string, len(headers))
	counts := make(map[string]int)
	for i, h := range headers {
		if h == "" {
			continue
		}
		if n := counts[h]; n > 0 {
			out[i] = fmt.Sprintf("%s.%d", h, n)
		} else {
			out[i] = h
		}
		counts[h]++
	}
	return out
}

func nonBlank(headers []string) []string {
	var out []string
	for _, h := range headers {
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// dimensionWidth returns the last column of a used-range reference such as
// "A1:Y400", or 0 when the reference is not a range.
func dimensionWidth(ref string) int {
	_, end, ok := strings.Cut(ref, ":")
	if !ok {
		return 0
	}
	col, _, err := excelize.CellNameToCoordinates(end)
	if err != nil {
		return 0
	}
	return col
}
