package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tdot-data/collision-weather-etl/internal/config"
	"github.com/tdot-data/collision-weather-etl/internal/ingestion"
	"github.com/tdot-data/collision-weather-etl/internal/models"
	"github.com/tdot-data/collision-weather-etl/internal/repository"
)

// WeatherOptions selects targets. Lat, Lon and Date together force a
// single one-day target; otherwise targets come from gap detection.
type WeatherOptions struct {
	Lat         *float64
	Lon         *float64
	Date        string
	TriggeredBy string
}

// WeatherPipeline fills the hourly weather cache for every grid cell
// incidents reference. Each target commits on its own, so progress
// survives a later target's failure.
type WeatherPipeline struct {
	cfg     *config.Config
	store   repository.Store
	fetcher Fetcher
	clock   clockwork.Clock
}

func NewWeatherPipeline(cfg *config.Config, store repository.Store, fetcher Fetcher, clock clockwork.Clock) *WeatherPipeline {
	return &WeatherPipeline{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		clock:   clock,
	}
}

func (p *WeatherPipeline) Run(ctx context.Context, opts WeatherOptions) error {
	runID, err := p.store.StartRun(ctx, "build_weather_cache", opts.TriggeredBy)
	if err != nil {
		return err
	}

	total, err := p.run(ctx, opts)
	if err != nil {
		slog.Error("weather run failed", "run_id", runID, "error", err)
		if endErr := p.store.EndRun(ctx, runID, models.RunStatusFailure, total, err.Error()); endErr != nil {
			slog.Error("error recording run failure", "run_id", runID, "error", endErr)
		}
		return err
	}

	slog.Info("weather run complete", "run_id", runID, "rows", total)
	return p.store.EndRun(ctx, runID, models.RunStatusSuccess, total, "")
}

func (p *WeatherPipeline) run(ctx context.Context, opts WeatherOptions) (int, error) {
	targets, err := p.targets(ctx, opts)
	if err != nil {
		return 0, err
	}
	if len(targets) == 0 {
		slog.Info("weather cache is complete, nothing to fetch")
		return 0, nil
	}
	slog.Info("fetching weather", "targets", len(targets))

	total := 0
	for _, tgt := range targets {
		url := ingestion.BuildWeatherURL(p.cfg.Sources.OpenMeteoBaseURL,
			tgt.Latitude, tgt.Longitude, tgt.StartDay, tgt.EndDay)

		var resp ingestion.WeatherResponse
		fetchErr := p.fetcher.GetJSON(ctx, url, &resp)
		p.clock.Sleep(p.cfg.Fetch.Throttle)

		if fetchErr != nil {
			// The gap stays open for the next run.
			slog.Warn("skipping weather target",
				"lat", tgt.Latitude, "lon", tgt.Longitude, "error", fetchErr)
			continue
		}

		n, writeErr := p.writeHours(ctx, tgt, &resp.Hourly)
		if writeErr != nil {
			return total, writeErr
		}
		total += n
		slog.Info("weather target committed",
			"lat", tgt.Latitude, "lon", tgt.Longitude, "rows", n)
	}

	return total, nil
}

// writeHours upserts every parsable hour of one payload inside its own
// transaction. A malformed hour is skipped; it never fails the payload.
func (p *WeatherPipeline) writeHours(ctx context.Context, tgt models.CellRange, hourly *ingestion.HourlySeries) (int, error) {
	tx, err := p.store.Begin(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range hourly.Time {
		row, err := hourly.Row(i, tgt.Latitude, tgt.Longitude)
		if err != nil {
			slog.Warn("skipping weather hour", "error", err)
			continue
		}

		if err := tx.UpsertWeatherHour(ctx, row); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("rollback failed", "error", rbErr)
			}
			return 0, err
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing weather target: %w", err)
	}
	return count, nil
}

func (p *WeatherPipeline) targets(ctx context.Context, opts WeatherOptions) ([]models.CellRange, error) {
	if opts.Lat != nil && opts.Lon != nil && opts.Date != "" {
		day, err := time.Parse("2006-01-02", opts.Date)
		if err != nil {
			return nil, fmt.Errorf("invalid date: %w", err)
		}
		return []models.CellRange{{
			Latitude:  models.RoundCoord(*opts.Lat),
			Longitude: models.RoundCoord(*opts.Lon),
			StartDay:  day,
			EndDay:    day,
		}}, nil
	}

	incidents, err := p.store.IncidentCells(ctx)
	if err != nil {
		return nil, err
	}
	cached, err := p.store.CachedWeatherCells(ctx)
	if err != nil {
		return nil, err
	}
	return MissingRanges(incidents, cached), nil
}
