package fixture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klytics/gsdkit/internal/ingest"
	"github.com/klytics/gsdkit/internal/layout"
	"github.com/klytics/gsdkit/internal/logging"
)

func TestDays(t *testing.T) {
	assert.Equal(t, 365, Days(2013))
	assert.Equal(t, 366, Days(2016))
}

func TestReportMatchesBuiltinLayout(t *testing.T) {
	l, err := layout.Builtin("lng-facilities")
	require.NoError(t, err)

	for _, fy := range []int{2013, 2016} {
		path, err := WriteReport(t.TempDir(), fy)
		require.NoError(t, err)

		records, stats, err := ingest.ProcessFile(context.Background(), ingest.Source{Path: path, Year: fy}, l, logging.Discard())
		require.NoError(t, err)
		assert.Equal(t, Days(fy), stats.Rows, "FY%d", fy)
		assert.Len(t, records, Days(fy)*9)
		assert.Positive(t, stats.Missing)
		assert.Equal(t, fy-1, records[0].Date.Year())
		assert.Equal(t, fy, records[len(records)-1].FiscalYear)
	}
}
