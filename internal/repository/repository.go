package repository

import (
	"context"
	"time"

	"github.com/tdot-data/collision-weather-etl/internal/models"
)

// Store is the storage capability the pipelines run against. A real SQL
// database and the test fakes both implement it.
type Store interface {
	// Begin opens a write transaction for the data tables. Run-ledger
	// writes happen outside any open transaction so a rollback never
	// erases bookkeeping.
	Begin(ctx context.Context) (Tx, error)

	// LastIncidentTime returns the newest stored occurrence time, or nil
	// when the incidents table is empty.
	LastIncidentTime(ctx context.Context) (*time.Time, error)

	// IncidentCells returns the distinct (rounded lat, rounded lon, UTC day)
	// cells derivable from incidents with usable coordinates.
	IncidentCells(ctx context.Context) ([]models.Cell, error)

	// CachedWeatherCells returns the cells for which at least one cached
	// hour exists. Day-level presence means the day was already fetched.
	CachedWeatherCells(ctx context.Context) ([]models.Cell, error)

	StartRun(ctx context.Context, pipeline, triggeredBy string) (string, error)
	EndRun(ctx context.Context, runID string, status models.RunStatus, rowCount int, errMessage string) error

	// ExportFlat reads the full incidents_flat view: column names first,
	// then every row with values already rendered as strings.
	ExportFlat(ctx context.Context) ([]string, [][]string, error)

	Close() error
}

// Tx is one open write transaction.
type Tx interface {
	UpsertIncident(ctx context.Context, inc *models.Incident) error
	UpsertWeatherHour(ctx context.Context, h *models.WeatherHour) error
	Commit() error
	Rollback() error
}
