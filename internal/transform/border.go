// Package transform turns extracted wide report rows into normalized long
// records: border rows are filtered out, then every remaining row is
// unpivoted into one record per value column.
package transform

import (
	"strings"

	"github.com/klytics/gsdkit/internal/formats/xlsx"
	"github.com/klytics/gsdkit/internal/layout"
	"github.com/klytics/gsdkit/internal/normalize"
)

const totalMarker = "total"

// Border drops non-data rows: declared divider rows, rows without a
// parseable date, and any row carrying a "total" label.
type Border struct {
	excluded   map[int]bool
	dateColumn string
}

// NewBorder builds the border filter for a layout.
func NewBorder(l *layout.Layout) *Border {
	return &Border{excluded: l.ExcludedRows(), dateColumn: l.DateColumn}
}

// Keep reports whether a row is data.
func (b *Border) Keep(row xlsx.RawRow) bool {
	if b.excluded[row.Position] {
		return false
	}
	if _, ok := normalize.ParseDate(row.Cells[b.dateColumn]); !ok {
		return false
	}
	for _, v := range row.Cells {
		if strings.Contains(strings.ToLower(v), totalMarker) {
			return false
		}
	}
	return true
}

// Filter returns the kept rows in their original order.
func (b *Border) Filter(rows []xlsx.RawRow) []xlsx.RawRow {
	kept := make([]xlsx.RawRow, 0, len(rows))
	for _, r := range rows {
		if b.Keep(r) {
			kept = append(kept, r)
		}
	}
	return kept
}
