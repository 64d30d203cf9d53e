package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klytics/gsdkit/internal/audit"
	"github.com/klytics/gsdkit/internal/consolidate"
	"github.com/klytics/gsdkit/internal/formats/xlsx"
	"github.com/klytics/gsdkit/internal/layout"
	"github.com/klytics/gsdkit/internal/logging"
	"github.com/klytics/gsdkit/internal/output"
	"github.com/klytics/gsdkit/internal/record"
	"github.com/klytics/gsdkit/internal/store"
)

const smallLayout = `
name: small
sheet: LNG Facilities
rows: {start: 2, end: 4}
date_column: date
columns:
  - {ref: A, name: date}
  - {ref: B, name: RICHMOND__BOILOFF}
classifier:
  mode: declared
  attributes:
    RICHMOND__BOILOFF: {entity: RICHMOND, measure: BOILOFF}
`

func writeWorkbook(t *testing.T, dir string, year int, sheet string) {
	t.Helper()
	path := filepath.Join(dir, "GSD REPORT FY"+strconv.Itoa(year)+".xlsx")
	require.NoError(t, xlsx.WriteFile(path, xlsx.Sheet{
		Name: sheet,
		Rows: [][]any{
			{"DATE", "RICHMOND"},
			{41153, 10},
			{41154, 11},
			{"TOTAL", 21},
		},
	}))
}

type fakeLoader struct {
	records []record.NormalizedRecord
	mode    store.Mode
	calls   int
	err     error
}

func (f *fakeLoader) Load(_ context.Context, records []record.NormalizedRecord, mode store.Mode) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	f.records = records
	f.mode = mode
	return int64(len(records)), nil
}

type countingProgress struct {
	mu              sync.Mutex
	steps, finished int
}

func (c *countingProgress) Step(string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps++
}

func (c *countingProgress) Finish() { c.finished++ }

func newPipeline(t *testing.T, rawDir string) (*Pipeline, string) {
	t.Helper()
	ledgerPath := filepath.Join(t.TempDir(), "runs.jsonl")
	ledger := audit.NewLedger(ledgerPath, true)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	ledger.Clock = clock

	return &Pipeline{
		Options: Options{
			RawDir:      rawDir,
			Pattern:     "GSD REPORT FY*.xlsx",
			MinYear:     2012,
			MaxYear:     2024,
			Concurrency: 2,
			OutputDir:   filepath.Join(t.TempDir(), "cleaned"),
			Formats:     []string{output.FormatCSV},
		},
		Ledger: ledger,
		Logger: logging.Discard(),
		Clock:  clock,
	}, ledgerPath
}

func mustLayout(t *testing.T) *layout.Layout {
	t.Helper()
	l, err := layout.Parse([]byte(smallLayout))
	require.NoError(t, err)
	return l
}

func TestRun(t *testing.T) {
	raw := t.TempDir()
	writeWorkbook(t, raw, 2013, "LNG Facilities")
	writeWorkbook(t, raw, 2014, "Renamed")
	writeWorkbook(t, raw, 2012, "LNG Facilities")

	p, ledgerPath := newPipeline(t, raw)
	loader := &fakeLoader{}
	p.Loader = loader
	p.Options.LoadMode = store.ModeReplace
	prog := &countingProgress{}
	p.NewProgress = func(string, int) Progress { return prog }

	sum, err := p.Run(context.Background(), []*layout.Layout{mustLayout(t)})
	require.NoError(t, err)
	require.NoError(t, sum.Err())
	require.Len(t, sum.Layouts, 1)

	lr := sum.Layouts[0]
	assert.Equal(t, 2, lr.Report.Succeeded)
	assert.Equal(t, 1, lr.Report.Failed)
	assert.Equal(t, 4, lr.Report.Records)
	assert.Equal(t, sum.RunID, lr.Report.RunID)
	assert.Equal(t, "small", lr.Report.Layout)

	require.Len(t, lr.Outputs, 1)
	assert.Equal(t, "small_long_consolidated.csv", filepath.Base(lr.Outputs[0]))
	got, err := output.ReadCSVFile(lr.Outputs[0])
	require.NoError(t, err)
	assert.Len(t, got, 4)

	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, store.ModeReplace, loader.mode)
	assert.Len(t, loader.records, 4)
	assert.Equal(t, int64(4), sum.Loaded)

	assert.Equal(t, 3, prog.steps)
	assert.Equal(t, 1, prog.finished)

	entries, err := audit.ReadEntries(ledgerPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, sum.RunID, entries[0].RunID)
	assert.Equal(t, "small", entries[0].Layout)
	assert.Equal(t, 3, entries[0].Files)
	assert.Equal(t, 4, entries[0].Rows)
	assert.Equal(t, int64(4), entries[0].Loaded)
}

func TestRun_NoData(t *testing.T) {
	raw := t.TempDir()
	writeWorkbook(t, raw, 2013, "Renamed")

	p, ledgerPath := newPipeline(t, raw)
	loader := &fakeLoader{}
	p.Loader = loader

	sum, err := p.Run(context.Background(), []*layout.Layout{mustLayout(t)})
	require.NoError(t, err)

	runErr := sum.Err()
	require.Error(t, runErr)
	assert.True(t, errors.Is(runErr, consolidate.ErrNoData))
	assert.Empty(t, sum.Layouts[0].Outputs, "no outputs without data")
	assert.Zero(t, loader.calls, "nothing to load")

	entries, err := audit.ReadEntries(ledgerPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "no data extracted", entries[0].Error)
}

func TestRun_NoWorkbooks(t *testing.T) {
	p, _ := newPipeline(t, t.TempDir())

	sum, err := p.Run(context.Background(), []*layout.Layout{mustLayout(t)})
	require.NoError(t, err)
	assert.True(t, errors.Is(sum.Err(), consolidate.ErrNoData))
}

func TestRun_MissingRawDir(t *testing.T) {
	p, _ := newPipeline(t, filepath.Join(t.TempDir(), "missing"))

	_, err := p.Run(context.Background(), []*layout.Layout{mustLayout(t)})
	require.Error(t, err)
}

func TestRun_LoadFailure(t *testing.T) {
	raw := t.TempDir()
	writeWorkbook(t, raw, 2013, "LNG Facilities")

	p, ledgerPath := newPipeline(t, raw)
	p.Loader = &fakeLoader{err: errors.New("connection refused")}

	sum, err := p.Run(context.Background(), []*layout.Layout{mustLayout(t)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database load failed")
	assert.Len(t, sum.Layouts[0].Outputs, 1, "outputs are kept when the load fails")

	entries, err := audit.ReadEntries(ledgerPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Error, "connection refused")
}

func TestRun_OutputFailureKeepsOtherFormats(t *testing.T) {
	raw := t.TempDir()
	writeWorkbook(t, raw, 2013, "LNG Facilities")

	p, _ := newPipeline(t, raw)
	p.Options.Formats = []string{"parquet", output.FormatCSV}

	sum, err := p.Run(context.Background(), []*layout.Layout{mustLayout(t)})
	require.NoError(t, err)
	require.Error(t, sum.Err())
	require.Len(t, sum.Layouts[0].Outputs, 1)
	_, statErr := os.Stat(sum.Layouts[0].Outputs[0])
	assert.NoError(t, statErr)
}

func TestRun_Cancelled(t *testing.T) {
	raw := t.TempDir()
	writeWorkbook(t, raw, 2013, "LNG Facilities")

	p, _ := newPipeline(t, raw)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, []*layout.Layout{mustLayout(t)})
	require.ErrorIs(t, err, context.Canceled)
}
