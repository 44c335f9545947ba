package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdot-data/collision-weather-etl/internal/models"
)

func TestExportPipeline_WritesCSV(t *testing.T) {
	store := newFakeStore()
	store.exportCols = []string{"event_id", "occ_date_utc", "temperature"}
	store.exportRows = [][]string{
		{"GO-1", "2024-01-01T14:00:00Z", "-3.5"},
		{"GO-2", "2024-01-01T17:00:00Z", ""},
	}
	p := NewExportPipeline(store)

	path := filepath.Join(t.TempDir(), "exports", "incidents.csv")
	err := p.Run(context.Background(), ExportOptions{OutputPath: path, TriggeredBy: "test"})
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, store.exportCols, records[0])
	assert.Equal(t, store.exportRows[0], records[1])
	assert.Equal(t, store.exportRows[1], records[2])

	run := store.lastRun()
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 2, run.RowCount)
	assert.Equal(t, "test", run.TriggeredBy)
}

func TestExportPipeline_EmptyViewStillWritesHeader(t *testing.T) {
	store := newFakeStore()
	store.exportCols = []string{"event_id", "occ_date_utc"}
	p := NewExportPipeline(store)

	path := filepath.Join(t.TempDir(), "incidents.csv")
	err := p.Run(context.Background(), ExportOptions{OutputPath: path})
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, store.exportCols, records[0])
	assert.Zero(t, store.lastRun().RowCount)
}

func TestExportPipeline_ReadFailureFailsRun(t *testing.T) {
	store := newFakeStore()
	store.exportErr = errors.New("view missing")
	p := NewExportPipeline(store)

	path := filepath.Join(t.TempDir(), "incidents.csv")
	err := p.Run(context.Background(), ExportOptions{OutputPath: path})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	run := store.lastRun()
	assert.Equal(t, models.RunStatusFailure, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "view missing")
}
