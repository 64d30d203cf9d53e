// Package pipeline runs a full ingestion: discover workbooks, extract and
// unpivot each one, consolidate per layout, write the outputs, optionally
// load them into Postgres, and record the run in the ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/klytics/gsdkit/internal/audit"
	"github.com/klytics/gsdkit/internal/consolidate"
	"github.com/klytics/gsdkit/internal/ingest"
	"github.com/klytics/gsdkit/internal/layout"
	"github.com/klytics/gsdkit/internal/output"
	"github.com/klytics/gsdkit/internal/record"
	"github.com/klytics/gsdkit/internal/store"
)

// ErrLoad marks a failed database load.
var ErrLoad = errors.New("database load failed")

// Loader writes consolidated records to the destination table.
type Loader interface {
	Load(ctx context.Context, records []record.NormalizedRecord, mode store.Mode) (int64, error)
}

// Progress observes workbooks as they finish.
type Progress interface {
	Step(name string, ok bool)
	Finish()
}

// Options select what a run reads and writes.
type Options struct {
	RawDir      string
	Pattern     string
	MinYear     int
	MaxYear     int
	Concurrency int
	DropMissing bool
	OutputDir   string
	Formats     []string
	LoadMode    store.Mode
}

// LayoutResult is the outcome of one layout within a run.
type LayoutResult struct {
	Layout  string                    `json:"layout"`
	Report  consolidate.Report        `json:"report"`
	Outputs []string                  `json:"outputs,omitempty"`
	Loaded  int64                     `json:"loaded,omitempty"`
	Error   string                    `json:"error,omitempty"`
	Records []record.NormalizedRecord `json:"-"`
	Err     error                     `json:"-"`
}

// Summary is the outcome of a whole run.
type Summary struct {
	RunID     string         `json:"runId"`
	StartedAt time.Time      `json:"startedAt"`
	Duration  time.Duration  `json:"durationNs"`
	Layouts   []LayoutResult `json:"layouts"`
	Loaded    int64          `json:"loaded"`
}

// Err returns the per-layout failures joined, or nil when every layout
// produced data and outputs.
func (s *Summary) Err() error {
	var errs []error
	for _, lr := range s.Layouts {
		if lr.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", lr.Layout, lr.Err))
		}
	}
	return errors.Join(errs...)
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	Options Options
	Loader  Loader        // nil disables the database load
	Ledger  *audit.Ledger // nil disables the run ledger
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Command string // recorded in the ledger

	// NewProgress, if set, creates a progress observer per layout.
	NewProgress func(label string, total int) Progress
}

// Run ingests every layout in turn. Layout-level problems (no data, output
// failures) are reported in the summary; the returned error is reserved
// for problems that stop the whole run: a bad raw directory, cancellation,
// or a failed database load.
func (p *Pipeline) Run(ctx context.Context, layouts []*layout.Layout) (*Summary, error) {
	clock := p.clock()
	logger := p.logger()

	sum := &Summary{RunID: uuid.NewString(), StartedAt: clock.Now().UTC()}
	logger = logger.With("run_id", sum.RunID)

	sources, err := ingest.Discover(p.Options.RawDir, p.Options.Pattern, p.Options.MinYear, p.Options.MaxYear, logger)
	if err != nil {
		return sum, err
	}
	logger.Info("workbooks discovered", "dir", p.Options.RawDir, "count", len(sources))

	for _, l := range layouts {
		lr, err := p.runLayout(ctx, l, sources, sum, logger)
		if err != nil {
			return sum, err
		}
		sum.Layouts = append(sum.Layouts, lr)
	}

	if p.Loader != nil {
		if err := p.load(ctx, sum, logger); err != nil {
			sum.Duration = clock.Since(sum.StartedAt)
			p.record(ctx, sum, err)
			return sum, err
		}
	}

	sum.Duration = clock.Since(sum.StartedAt)
	p.record(ctx, sum, nil)
	return sum, nil
}

func (p *Pipeline) runLayout(ctx context.Context, l *layout.Layout, sources []ingest.Source, sum *Summary, logger *slog.Logger) (LayoutResult, error) {
	lr := LayoutResult{Layout: l.Name}
	logger = logger.With("layout", l.Name)

	runner := &ingest.Runner{
		Layout:      l,
		Concurrency: p.Options.Concurrency,
		Logger:      logger,
		Clock:       p.clock(),
	}
	var prog Progress
	if p.NewProgress != nil {
		prog = p.NewProgress(l.Name, len(sources))
		runner.OnDone = func(b ingest.Batch) {
			prog.Step(filepath.Base(b.Source.Path), b.OK())
		}
	}

	batches, err := runner.Run(ctx, sources)
	if prog != nil {
		prog.Finish()
	}
	if err != nil {
		return lr, fmt.Errorf("ingestion of %s interrupted: %w", l.Name, err)
	}

	res, err := consolidate.Consolidate(batches, consolidate.Options{DropMissing: p.Options.DropMissing})
	res.Report.RunID = sum.RunID
	res.Report.Layout = l.Name
	res.Report.StartedAt = sum.StartedAt
	lr.Report = res.Report
	if err != nil {
		logger.Error("no data extracted", "files", len(batches), "failed", res.Report.Failed)
		lr.Err = err
		lr.Error = err.Error()
		return lr, nil
	}
	lr.Records = res.Records

	written, err := output.WriteFiles(p.Options.OutputDir, l.OutputName(), p.Options.Formats, res.Records)
	lr.Outputs = written
	for _, path := range written {
		logger.Info("output written", "path", path, "records", len(res.Records))
	}
	if err != nil {
		logger.Error("output failed", "error", err)
		lr.Err = err
		lr.Error = err.Error()
	}

	logger.Info("layout consolidated",
		"succeeded", res.Report.Succeeded,
		"failed", res.Report.Failed,
		"records", res.Report.Records,
		"dropped", res.Report.Dropped,
	)
	return lr, nil
}

// load writes the records of every layout that produced data in a single
// call, so replace mode clears the table once per run.
func (p *Pipeline) load(ctx context.Context, sum *Summary, logger *slog.Logger) error {
	var all []record.NormalizedRecord
	for _, lr := range sum.Layouts {
		all = append(all, lr.Records...)
	}
	if len(all) == 0 {
		logger.Warn("nothing to load")
		return nil
	}

	mode := p.Options.LoadMode
	if mode == "" {
		mode = store.ModeAppend
	}
	n, err := p.Loader.Load(ctx, all, mode)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	sum.Loaded = n
	for i := range sum.Layouts {
		sum.Layouts[i].Loaded = int64(len(sum.Layouts[i].Records))
	}
	logger.Info("records loaded", "rows", n, "mode", mode)
	return nil
}

// record appends one ledger entry per layout. Best-effort.
func (p *Pipeline) record(ctx context.Context, sum *Summary, runErr error) {
	if p.Ledger == nil {
		return
	}
	command := p.Command
	if command == "" {
		command = "ingest"
	}
	for _, lr := range sum.Layouts {
		entry := audit.Entry{
			Timestamp:  sum.StartedAt,
			RunID:      sum.RunID,
			Command:    command,
			Layout:     lr.Layout,
			Files:      len(lr.Report.Files),
			Succeeded:  lr.Report.Succeeded,
			Failed:     lr.Report.Failed,
			Rows:       lr.Report.Records,
			Loaded:     lr.Loaded,
			DurationMs: sum.Duration.Milliseconds(),
			Outputs:    lr.Outputs,
			Error:      lr.Error,
		}
		if entry.Error == "" && runErr != nil {
			entry.Error = runErr.Error()
		}
		_ = p.Ledger.Log(ctx, entry)
	}
}

func (p *Pipeline) clock() clockwork.Clock {
	if p.Clock == nil {
		return clockwork.NewRealClock()
	}
	return p.Clock
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
