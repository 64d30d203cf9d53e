package output

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klytics/gsdkit/internal/record"
)

func sample() []record.NormalizedRecord {
	return []record.NormalizedRecord{
		{Date: time.Date(2012, time.August, 31, 0, 0, 0, 0, time.UTC), Entity: "0-34", Pipeline: record.PipelineTetco,
			Measure: "sendout", Value: record.Float(1234.5), FiscalYear: 2012, SourceYearHint: 2012},
		{Date: time.Date(2012, time.September, 1, 0, 0, 0, 0, time.UTC), Entity: "TRANSCO, WHITMAN", Pipeline: record.PipelineTransco,
			Measure: "sendout", FiscalYear: 2013, SourceYearHint: 2013},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()))

	want := "date,entity,pipeline,measure,value,fiscal_year,source_year_hint\n" +
		"2012-08-31,0-34,tetco,sendout,1234.5,2012,2012\n" +
		"2012-09-01,\"TRANSCO, WHITMAN\",transco,sendout,,2013,2013\n"
	assert.Equal(t, want, buf.String())

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(sample(), got); diff != "" {
		t.Errorf("CSV did not read back (-want +got):\n%s", diff)
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty", "", "CSV is empty"},
		{"legacy header", "date,plant,measure,value,fy,source_year_hint,x\n", "unexpected CSV header"},
		{"bad date", "date,entity,pipeline,measure,value,fiscal_year,source_year_hint\n08/31/2012,A,tetco,m,1,2012,2012\n", "line 2: invalid date"},
		{"bad pipeline", "date,entity,pipeline,measure,value,fiscal_year,source_year_hint\n2012-08-31,A,columbia,m,1,2012,2012\n", "unknown pipeline"},
		{"bad value", "date,entity,pipeline,measure,value,fiscal_year,source_year_hint\n2012-08-31,A,tetco,m,1.2.3,2012,2012\n", "invalid value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWriteFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cleaned")
	written, err := WriteFiles(dir, "LNG_Facilities_long_consolidated", []string{FormatCSV, FormatXLSX}, sample())
	require.NoError(t, err)
	require.Len(t, written, 2)

	for _, p := range written {
		_, err := os.Stat(p)
		require.NoError(t, err)
	}

	got, err := ReadCSVFile(written[0])
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestWriteFiles_UnknownFormatKeepsOthers(t *testing.T) {
	written, err := WriteFiles(t.TempDir(), "out", []string{"parquet", FormatCSV}, sample())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parquet")
	assert.Len(t, written, 1)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitUserError, ExitCode(errors.New("plain")))
	assert.Equal(t, ExitSystemError, ExitCode(WithCode(ExitSystemError, errors.New("no data"))))
	assert.NoError(t, WithCode(ExitSystemError, nil))

	reported := Reported(ExitSystemError, errors.New("no data"))
	assert.True(t, IsReported(reported))
	assert.Equal(t, ExitSystemError, ExitCode(reported))
	assert.False(t, IsReported(WithCode(ExitSystemError, errors.New("no data"))))
}
