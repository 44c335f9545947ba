package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tdot-data/collision-weather-etl/internal/config"
	"github.com/tdot-data/collision-weather-etl/internal/ingestion"
	"github.com/tdot-data/collision-weather-etl/internal/models"
	"github.com/tdot-data/collision-weather-etl/internal/repository"
)

// Fetcher is the retrying HTTP capability the pipelines depend on.
type Fetcher interface {
	GetJSON(ctx context.Context, url string, v any) error
}

// IncidentOptions selects the fetch window. Dates are local calendar
// days (YYYY-MM-DD); leaving StartDate empty selects incremental mode.
type IncidentOptions struct {
	StartDate   string
	EndDate     string
	TriggeredBy string
}

// IncidentPipeline pulls collision features one local day at a time and
// upserts them keyed on event_id. The whole batch is one transaction:
// either every fetched day lands, or none do.
type IncidentPipeline struct {
	cfg     *config.Config
	store   repository.Store
	fetcher Fetcher
	clock   clockwork.Clock
	loc     *time.Location
}

func NewIncidentPipeline(cfg *config.Config, store repository.Store, fetcher Fetcher, clock clockwork.Clock) (*IncidentPipeline, error) {
	loc, err := time.LoadLocation(cfg.Sources.IncidentTimezone)
	if err != nil {
		return nil, fmt.Errorf("error loading timezone %s: %w", cfg.Sources.IncidentTimezone, err)
	}
	return &IncidentPipeline{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		clock:   clock,
		loc:     loc,
	}, nil
}

func (p *IncidentPipeline) Run(ctx context.Context, opts IncidentOptions) error {
	runID, err := p.store.StartRun(ctx, "fetch_incidents", opts.TriggeredBy)
	if err != nil {
		return err
	}

	total, err := p.run(ctx, opts)
	if err != nil {
		slog.Error("incident run failed", "run_id", runID, "error", err)
		if endErr := p.store.EndRun(ctx, runID, models.RunStatusFailure, total, err.Error()); endErr != nil {
			slog.Error("error recording run failure", "run_id", runID, "error", endErr)
		}
		return err
	}

	slog.Info("incident run complete", "run_id", runID, "rows", total)
	return p.store.EndRun(ctx, runID, models.RunStatusSuccess, total, "")
}

func (p *IncidentPipeline) run(ctx context.Context, opts IncidentOptions) (int, error) {
	start, end, err := p.window(ctx, opts)
	if err != nil {
		return 0, err
	}
	slog.Info("fetching incidents",
		"start", start.Format("2006-01-02"), "end", end.Format("2006-01-02"))

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		url := ingestion.BuildIncidentURL(p.cfg.Sources.TPSBaseURL, day)

		var resp ingestion.FeatureResponse
		fetchErr := p.fetcher.GetJSON(ctx, url, &resp)
		p.clock.Sleep(p.cfg.Fetch.Throttle)

		if fetchErr != nil {
			// Abandoned after retries; the day stays missing until the
			// next run.
			slog.Warn("no data for day", "day", day.Format("2006-01-02"), "error", fetchErr)
			continue
		}

		if err := p.archiveRaw(day, resp.Raw()); err != nil {
			// The same payload survives per record in the raw column, so
			// a failed archive write never blocks the load.
			slog.Warn("raw archive write failed", "day", day.Format("2006-01-02"), "error", err)
		}

		n, upsertErr := p.upsertFeatures(ctx, tx, resp.Features)
		if upsertErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("rollback failed", "error", rbErr)
			}
			return total, upsertErr
		}
		total += n
		slog.Info("day ingested", "day", day.Format("2006-01-02"), "records", n)
	}

	if err := tx.Commit(); err != nil {
		return total, fmt.Errorf("error committing incident batch: %w", err)
	}
	return total, nil
}

// upsertFeatures writes every parsable feature. Records without an
// event id or with undecodable JSON are skipped with a warning; the
// count is records processed, including the update branch.
func (p *IncidentPipeline) upsertFeatures(ctx context.Context, tx repository.Tx, features []json.RawMessage) (int, error) {
	count := 0
	for _, raw := range features {
		inc, err := ingestion.ParseFeature(raw, p.loc)
		if err != nil {
			if errors.Is(err, ingestion.ErrMissingEventID) {
				slog.Warn("skipping feature without event id", "error", err)
			} else {
				slog.Warn("skipping malformed feature", "error", err)
			}
			continue
		}

		if err := tx.UpsertIncident(ctx, inc); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// archiveRaw writes one day's response body under the partitioned
// archive path raw/year=YYYY/month=MM/day=DD/incidents.json. An empty
// RawDir disables archiving.
func (p *IncidentPipeline) archiveRaw(day time.Time, body []byte) error {
	if p.cfg.Sources.RawDir == "" || body == nil {
		return nil
	}

	dir := filepath.Join(p.cfg.Sources.RawDir,
		fmt.Sprintf("year=%04d", day.Year()),
		fmt.Sprintf("month=%02d", int(day.Month())),
		fmt.Sprintf("day=%02d", day.Day()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating archive directory: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "incidents.json"), body, 0o644)
}

// window resolves the local-day fetch window. Explicit dates win; else
// resume one day before the newest stored incident; else start at the
// project baseline. The end defaults to the last day of the start's
// calendar quarter.
func (p *IncidentPipeline) window(ctx context.Context, opts IncidentOptions) (time.Time, time.Time, error) {
	var start time.Time
	switch {
	case opts.StartDate != "":
		d, err := time.ParseInLocation("2006-01-02", opts.StartDate, p.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date: %w", err)
		}
		start = d
	default:
		last, err := p.store.LastIncidentTime(ctx)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if last != nil {
			local := last.In(p.loc)
			start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.loc).AddDate(0, 0, -1)
		} else {
			d, err := time.ParseInLocation("2006-01-02", p.cfg.Sources.BaselineDate, p.loc)
			if err != nil {
				return time.Time{}, time.Time{}, fmt.Errorf("invalid baseline date: %w", err)
			}
			start = d
		}
	}

	var end time.Time
	if opts.EndDate != "" {
		d, err := time.ParseInLocation("2006-01-02", opts.EndDate, p.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date: %w", err)
		}
		end = d
	} else {
		end = quarterEnd(start, p.loc)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s is before start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	return start, end, nil
}

func quarterEnd(start time.Time, loc *time.Location) time.Time {
	month := ((int(start.Month())-1)/3 + 1) * 3
	var nextQuarter time.Time
	if month >= 12 {
		nextQuarter = time.Date(start.Year()+1, time.January, 1, 0, 0, 0, 0, loc)
	} else {
		nextQuarter = time.Date(start.Year(), time.Month(month+1), 1, 0, 0, 0, 0, loc)
	}
	return nextQuarter.AddDate(0, 0, -1)
}
