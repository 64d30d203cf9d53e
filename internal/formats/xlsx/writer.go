package xlsx

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/klytics/gsdkit/internal/record"
)

// Sheet is a named grid of cell values. Values keep their Go types, so
// numbers and times are written as numeric cells.
type Sheet struct {
	Name string
	Rows [][]any
}

// WriteFile creates a new .xlsx file holding the given sheets in order.
func WriteFile(path string, sheets ...Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		sheetName := sheet.Name
		if sheetName == "" {
			sheetName = fmt.Sprintf("Sheet%d", i+1)
		}

		if i == 0 {
			// Rename default sheet
			defaultSheet := f.GetSheetName(0)
			if err := f.SetSheetName(defaultSheet, sheetName); err != nil {
				return fmt.Errorf("could not rename sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(sheetName); err != nil {
				return fmt.Errorf("could not create sheet %q: %w", sheetName, err)
			}
		}

		for rowIdx, row := range sheet.Rows {
			for colIdx, cell := range row {
				if cell == nil {
					continue
				}
				cellName, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
				if err != nil {
					return fmt.Errorf("invalid cell coordinates: %w", err)
				}
				if err := f.SetCellValue(sheetName, cellName, cell); err != nil {
					return fmt.Errorf("could not set cell %s: %w", cellName, err)
				}
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("could not save %s: %w", path, err)
	}

	return nil
}

// WriteRecords streams normalized records into a single-sheet workbook.
// Dates become date cells; a missing value leaves its cell empty.
func WriteRecords(path, sheetName string, records []record.NormalizedRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheetName == "" {
		sheetName = "Sheet1"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("could not rename sheet: %w", err)
	}

	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	if err != nil {
		return fmt.Errorf("could not create date style: %w", err)
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("could not open stream writer: %w", err)
	}

	header := make([]any, len(record.Columns))
	for i, h := range record.Columns {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("could not write header: %w", err)
	}

	for i, r := range records {
		var value any
		if r.Value != nil {
			value = *r.Value
		}
		row := []any{
			excelize.Cell{StyleID: dateStyle, Value: r.Date},
			r.Entity,
			string(r.Pipeline),
			r.Measure,
			value,
			r.FiscalYear,
			r.SourceYearHint,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("could not write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("could not flush %s: %w", path, err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("could not save %s: %w", path, err)
	}
	return nil
}
