// Package record defines the normalized long-format sendout record and the
// fiscal-year arithmetic every stage of the pipeline shares.
package record

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical textual form of a record date.
const DateLayout = "2006-01-02"

// Pipeline is the upstream transmission system an entity is attributed to.
type Pipeline string

const (
	PipelineTetco   Pipeline = "tetco"
	PipelineTransco Pipeline = "transco"
	PipelineUnknown Pipeline = "unknown"
)

var knownPipelines = []Pipeline{PipelineTetco, PipelineTransco, PipelineUnknown}

// ParsePipeline validates a pipeline tag. The empty string maps to unknown.
func ParsePipeline(s string) (Pipeline, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PipelineUnknown, nil
	}
	for _, p := range knownPipelines {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown pipeline %q — expected one of %v", s, knownPipelines)
}

// Columns is the column order of persisted record tables.
var Columns = []string{"date", "entity", "pipeline", "measure", "value", "fiscal_year", "source_year_hint"}

// NormalizedRecord is one (date, entity, measure) observation taken from a
// single source workbook. Value is nil when the cell was blank or could not
// be read as a number.
type NormalizedRecord struct {
	Date           time.Time `json:"date"`
	Entity         string    `json:"entity"`
	Pipeline       Pipeline  `json:"pipeline"`
	Measure        string    `json:"measure"`
	Value          *float64  `json:"value"`
	FiscalYear     int       `json:"fiscal_year"`
	SourceYearHint int       `json:"source_year_hint"`
}

// HasValue reports whether the record carries a numeric reading.
func (r NormalizedRecord) HasValue() bool {
	return r.Value != nil
}

// Less orders records by (fiscal_year, date, entity, measure).
func Less(a, b NormalizedRecord) bool {
	if a.FiscalYear != b.FiscalYear {
		return a.FiscalYear < b.FiscalYear
	}
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	if a.Entity != b.Entity {
		return a.Entity < b.Entity
	}
	return a.Measure < b.Measure
}

// Float returns a pointer to v, for building records with a value.
func Float(v float64) *float64 {
	return &v
}
