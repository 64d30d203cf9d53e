package transform

import (
	"fmt"

	"github.com/klytics/gsdkit/internal/classify"
	"github.com/klytics/gsdkit/internal/formats/xlsx"
	"github.com/klytics/gsdkit/internal/layout"
	"github.com/klytics/gsdkit/internal/normalize"
	"github.com/klytics/gsdkit/internal/record"
)

// Stats summarizes one workbook's transformation.
type Stats struct {
	Rows    int `json:"rows"`
	Records int `json:"records"`
	Missing int `json:"missing"`
}

// target is one output slot of a wide column. Plain columns have one;
// shared auxiliary columns have one per family.
type target struct {
	column string
	attr   classify.Attribute
}

// Longify unpivots filtered wide rows into normalized records, row-major in
// column order. Every value column is classified before any row is read, so
// an unmapped column fails the whole workbook. Rows without a parseable date
// are skipped.
func Longify(rows []xlsx.RawRow, columns []string, l *layout.Layout, c classify.Classifier, sourceYear int) ([]record.NormalizedRecord, Stats, error) {
	targets, err := plan(columns, l, c)
	if err != nil {
		return nil, Stats{}, err
	}

	var stats Stats
	records := make([]record.NormalizedRecord, 0, len(rows)*len(targets))
	for _, row := range rows {
		date, ok := normalize.ParseDate(row.Cells[l.DateColumn])
		if !ok {
			continue
		}
		stats.Rows++
		fy := record.FiscalYear(date)

		for _, t := range targets {
			rec := record.NormalizedRecord{
				Date:           date,
				Entity:         t.attr.Entity,
				Pipeline:       t.attr.Pipeline,
				Measure:        t.attr.Measure,
				FiscalYear:     fy,
				SourceYearHint: sourceYear,
			}
			if v, ok := normalize.ToNumber(row.Cells[t.column]); ok {
				rec.Value = record.Float(v)
			} else {
				stats.Missing++
			}
			records = append(records, rec)
		}
	}
	stats.Records = len(records)
	return records, stats, nil
}

func plan(columns []string, l *layout.Layout, c classify.Classifier) ([]target, error) {
	var targets []target
	for _, col := range columns {
		if col == l.DateColumn {
			continue
		}
		attr, err := c.Classify(col)
		if err != nil {
			return nil, err
		}
		if !l.IsShared(col) {
			targets = append(targets, target{column: col, attr: attr})
			continue
		}
		for _, f := range l.Families {
			p, err := record.ParsePipeline(f.Pipeline)
			if err != nil {
				return nil, fmt.Errorf("family %q: %w", f.Entity, err)
			}
			targets = append(targets, target{
				column: col,
				attr:   classify.Attribute{Entity: f.Entity, Pipeline: p, Measure: attr.Measure},
			})
		}
	}
	return targets, nil
}
