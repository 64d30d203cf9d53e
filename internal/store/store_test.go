package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klytics/gsdkit/internal/record"
)

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, errors.New("unsupported") }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

type fakeTx struct {
	execs   []string
	batches [][]Row
	failAt  int
}

func (f *fakeTx) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	f.execs = append(f.execs, query)
	return fakeResult(0), nil
}

func (f *fakeTx) NamedExecContext(_ context.Context, _ string, arg any) (sql.Result, error) {
	rows := arg.([]Row)
	if f.failAt > 0 && len(f.batches)+1 == f.failAt {
		return nil, errors.New("connection reset")
	}
	f.batches = append(f.batches, rows)
	return fakeResult(len(rows)), nil
}

func records(n int) []record.NormalizedRecord {
	out := make([]record.NormalizedRecord, n)
	for i := range out {
		d := time.Date(2012, time.September, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		out[i] = record.NormalizedRecord{Date: d, Entity: "RICHMOND", Pipeline: record.PipelineUnknown,
			Measure: "BOILOFF", Value: record.Float(float64(i)), FiscalYear: record.FiscalYear(d), SourceYearHint: 2013}
	}
	return out
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeAppend, false},
		{"append", ModeAppend, false},
		{" Replace ", ModeReplace, false},
		{"upsert", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRowFrom(t *testing.T) {
	r := records(1)[0]
	row := RowFrom(r)
	assert.Equal(t, r.Date, row.GasDay)
	assert.Equal(t, "unknown", row.Pipeline)
	assert.Equal(t, sql.NullFloat64{Float64: 0, Valid: true}, row.Value)

	r.Value = nil
	assert.False(t, RowFrom(r).Value.Valid, "missing values load as NULL")
}

func TestQualifiedTable(t *testing.T) {
	assert.Equal(t, `"gsd"."cleaned_sendout_data"`, QualifiedTable("gsd", "cleaned_sendout_data"))
	assert.Equal(t, `"t"`, QualifiedTable("", "t"))
	assert.Equal(t, `"a""b"`, QualifiedTable("", `a"b`))
}

func TestLoad_Chunks(t *testing.T) {
	tx := &fakeTx{}
	n, err := load(context.Background(), tx, `"gsd"."t"`, records(25), ModeAppend, 10)
	require.NoError(t, err)

	assert.EqualValues(t, 25, n)
	assert.Empty(t, tx.execs, "append mode never deletes")
	require.Len(t, tx.batches, 3)
	assert.Len(t, tx.batches[2], 5)
}

func TestLoad_ReplaceDeletesFirst(t *testing.T) {
	tx := &fakeTx{}
	_, err := load(context.Background(), tx, `"gsd"."t"`, records(3), ModeReplace, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{`DELETE FROM "gsd"."t"`}, tx.execs)
	assert.Len(t, tx.batches, 1)
}

func TestLoad_ChunkFailure(t *testing.T) {
	tx := &fakeTx{failAt: 2}
	_, err := load(context.Background(), tx, `"t"`, records(25), ModeAppend, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rows 11-20")
}

func TestInsertQuery(t *testing.T) {
	q := InsertQuery(`"gsd"."t"`)
	for _, col := range []string{"gas_day", "entity", "pipeline", "measure", "value", "fiscal_year", "source_year_hint"} {
		assert.Contains(t, q, ":"+col)
	}
	assert.True(t, strings.HasPrefix(q, `INSERT INTO "gsd"."t"`))
}

func TestConnect_NoURL(t *testing.T) {
	_, err := Connect(context.Background(), "")
	require.Error(t, err)
}

// TestLoader_Postgres runs against a real database when GSD_TEST_DATABASE_URL
// points at one with a gsd_test.cleaned_sendout_data table.
func TestLoader_Postgres(t *testing.T) {
	url := os.Getenv("GSD_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("GSD_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, url)
	require.NoError(t, err)
	defer db.Close()

	l, err := NewLoader(db, "gsd_test", "cleaned_sendout_data")
	require.NoError(t, err)

	n, err := l.Load(ctx, records(5), ModeReplace)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	var count int
	require.NoError(t, db.GetContext(ctx, &count, "SELECT count(*) FROM "+QualifiedTable("gsd_test", "cleaned_sendout_data")))
	assert.Equal(t, 5, count)
}
