package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/klytics/gsdkit/internal/classify"
	"github.com/klytics/gsdkit/internal/formats/xlsx"
	"github.com/klytics/gsdkit/internal/layout"
	"github.com/klytics/gsdkit/internal/record"
	"github.com/klytics/gsdkit/internal/transform"
)

// ErrOpen wraps failures to open a workbook file.
var ErrOpen = errors.New("could not open workbook")

// DefaultConcurrency is the number of workbooks processed at once when the
// runner is not told otherwise.
const DefaultConcurrency = 4

// Batch is the outcome of one workbook: its records, or the error that
// stopped it. A batch with no error and no records is a workbook that
// genuinely held no data.
type Batch struct {
	Source   Source                    `json:"source"`
	Records  []record.NormalizedRecord `json:"-"`
	Stats    transform.Stats           `json:"stats"`
	Err      error                     `json:"-"`
	Duration time.Duration             `json:"duration"`
}

// OK reports whether the workbook was processed.
func (b Batch) OK() bool {
	return b.Err == nil
}

// Runner processes the workbooks of one layout.
type Runner struct {
	Layout      *layout.Layout
	Concurrency int
	Logger      *slog.Logger
	Clock       clockwork.Clock
	// OnDone, if set, is called after each workbook. It may be called
	// concurrently.
	OnDone func(Batch)
}

// Run processes every source and returns one batch per source, in source
// order. A failing workbook never stops the others; the returned error is
// non-nil only when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, sources []Source) ([]Batch, error) {
	limit := r.Concurrency
	if limit < 1 {
		limit = DefaultConcurrency
	}

	batches := make([]Batch, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				batches[i] = Batch{Source: src, Err: err}
				return err
			}
			batches[i] = r.process(ctx, src)
			if r.OnDone != nil {
				r.OnDone(batches[i])
			}
			if err := ctx.Err(); err != nil && errors.Is(batches[i].Err, err) {
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	return batches, err
}

func (r *Runner) process(ctx context.Context, src Source) Batch {
	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("layout", r.Layout.Name, "file", filepath.Base(src.Path), "year", src.Year)

	start := clock.Now()
	logger.Debug("processing workbook")

	records, stats, err := ProcessFile(ctx, src, r.Layout, logger)
	b := Batch{Source: src, Records: records, Stats: stats, Err: err, Duration: clock.Since(start)}
	if err != nil {
		logger.Warn("skipping workbook", "error", err)
		return b
	}

	logger.Info("workbook processed", "rows", stats.Rows, "records", stats.Records, "missing", stats.Missing)
	return b
}

// ProcessFile runs one workbook through extraction, border filtering and
// unpivoting. The workbook is always closed before returning, including
// when ctx is cancelled mid-sheet.
func ProcessFile(ctx context.Context, src Source, l *layout.Layout, logger *slog.Logger) ([]record.NormalizedRecord, transform.Stats, error) {
	wb, err := xlsx.Open(src.Path)
	if err != nil {
		return nil, transform.Stats{}, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer wb.Close()

	it, err := wb.Extract(l)
	if err != nil {
		return nil, transform.Stats{}, err
	}
	defer it.Close()

	border := transform.NewBorder(l)
	var rows []xlsx.RawRow
	extracted := 0
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, transform.Stats{}, err
		}
		extracted++
		if row := it.Row(); border.Keep(row) {
			rows = append(rows, row)
		}
	}
	if err := it.Err(); err != nil {
		return nil, transform.Stats{}, err
	}
	logger.Debug("rows extracted", "extracted", extracted, "kept", len(rows))
	if err := ctx.Err(); err != nil {
		return nil, transform.Stats{}, err
	}

	c, err := classify.FromLayout(l, logger)
	if err != nil {
		return nil, transform.Stats{}, err
	}
	return transform.Longify(rows, it.ValueColumns(), l, c, src.Year)
}
