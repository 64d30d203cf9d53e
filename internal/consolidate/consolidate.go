// Package consolidate folds per-workbook batches into one ordered record
// set and a per-file run report.
package consolidate

import (
	"errors"
	"sort"
	"time"

	"github.com/klytics/gsdkit/internal/classify"
	"github.com/klytics/gsdkit/internal/formats/xlsx"
	"github.com/klytics/gsdkit/internal/ingest"
	"github.com/klytics/gsdkit/internal/record"
)

// ErrNoData is returned when no workbook of a run produced records, either
// because none were found or because every one failed.
var ErrNoData = errors.New("no data extracted")

// File statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Reason codes for failed files.
const (
	ReasonSheetNotFound  = "sheet_not_found"
	ReasonLayout         = "layout"
	ReasonUnmappedColumn = "unmapped_column"
	ReasonOpenFailed     = "open_failed"
	ReasonError          = "error"
)

// Options tune consolidation.
type Options struct {
	// DropMissing removes records without a value.
	DropMissing bool
}

// FileResult is one line of the run report.
type FileResult struct {
	Path       string        `json:"path"`
	SourceYear int           `json:"sourceYear"`
	Status     string        `json:"status"`
	Rows       int           `json:"rows"`
	Records    int           `json:"records"`
	Missing    int           `json:"missing"`
	Reason     string        `json:"reason,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"durationNs"`
}

// Report summarizes a consolidation. Identity fields (RunID, Layout,
// StartedAt) are filled in by the caller.
type Report struct {
	RunID     string       `json:"runId"`
	Layout    string       `json:"layout"`
	StartedAt time.Time    `json:"startedAt"`
	Files     []FileResult `json:"files"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Records   int          `json:"records"`
	Dropped   int          `json:"dropped"`
}

// Result is the consolidated dataset and its report.
type Result struct {
	Records []record.NormalizedRecord
	Report  Report
}

// Consolidate merges batches into one sequence sorted by (fiscal_year,
// date, entity, measure). Records that repeat across overlapping source
// files are all kept. Batches are folded in (source year, path) order and
// the sort is stable, so ties keep that order.
//
// When no batch succeeded, Consolidate returns the report together with
// ErrNoData.
func Consolidate(batches []ingest.Batch, opts Options) (*Result, error) {
	ordered := make([]ingest.Batch, len(batches))
	copy(ordered, batches)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Source, ordered[j].Source
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Path < b.Path
	})

	acc := accumulator{opts: opts}
	for _, b := range ordered {
		acc = acc.add(b)
	}

	sort.SliceStable(acc.records, func(i, j int) bool {
		return record.Less(acc.records[i], acc.records[j])
	})

	res := &Result{Records: acc.records, Report: acc.report}
	res.Report.Records = len(acc.records)
	if res.Report.Succeeded == 0 {
		return res, ErrNoData
	}
	return res, nil
}

type accumulator struct {
	opts    Options
	records []record.NormalizedRecord
	report  Report
}

// add returns a new accumulator with b folded in.
func (a accumulator) add(b ingest.Batch) accumulator {
	fr := FileResult{
		Path:       b.Source.Path,
		SourceYear: b.Source.Year,
		Duration:   b.Duration,
	}

	next := accumulator{opts: a.opts, records: a.records, report: a.report}
	next.report.Files = append(append([]FileResult(nil), a.report.Files...), fr)
	last := &next.report.Files[len(next.report.Files)-1]

	if !b.OK() {
		last.Status = StatusFailed
		last.Reason = Reason(b.Err)
		last.Error = b.Err.Error()
		next.report.Failed++
		return next
	}

	kept := b.Records
	if a.opts.DropMissing {
		kept = make([]record.NormalizedRecord, 0, len(b.Records))
		for _, r := range b.Records {
			if r.HasValue() {
				kept = append(kept, r)
			}
		}
		next.report.Dropped += len(b.Records) - len(kept)
	}

	last.Status = StatusOK
	last.Rows = b.Stats.Rows
	last.Records = len(kept)
	last.Missing = b.Stats.Missing
	next.report.Succeeded++
	next.records = append(append(make([]record.NormalizedRecord, 0, len(a.records)+len(kept)), a.records...), kept...)
	return next
}

// Reason maps a workbook failure to a stable reason code.
func Reason(err error) string {
	var (
		notFound *xlsx.SheetNotFoundError
		layout   *xlsx.LayoutError
		unmapped *classify.UnmappedColumnError
	)
	switch {
	case errors.As(err, &notFound):
		return ReasonSheetNotFound
	case errors.As(err, &layout):
		return ReasonLayout
	case errors.As(err, &unmapped):
		return ReasonUnmappedColumn
	case errors.Is(err, ingest.ErrOpen):
		return ReasonOpenFailed
	default:
		return ReasonError
	}
}
