package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tdot-data/collision-weather-etl/internal/models"
	"github.com/tdot-data/collision-weather-etl/internal/repository"
)

type ExportOptions struct {
	OutputPath  string
	TriggeredBy string
}

// ExportPipeline dumps the flat analytical view to a CSV file.
type ExportPipeline struct {
	store repository.Store
}

func NewExportPipeline(store repository.Store) *ExportPipeline {
	return &ExportPipeline{store: store}
}

func (p *ExportPipeline) Run(ctx context.Context, opts ExportOptions) error {
	runID, err := p.store.StartRun(ctx, "export_incidents", opts.TriggeredBy)
	if err != nil {
		return err
	}

	rows, err := p.run(ctx, opts)
	if err != nil {
		slog.Error("export run failed", "run_id", runID, "error", err)
		if endErr := p.store.EndRun(ctx, runID, models.RunStatusFailure, rows, err.Error()); endErr != nil {
			slog.Error("error recording run failure", "run_id", runID, "error", endErr)
		}
		return err
	}

	slog.Info("export run complete", "run_id", runID, "rows", rows)
	return p.store.EndRun(ctx, runID, models.RunStatusSuccess, rows, "")
}

func (p *ExportPipeline) run(ctx context.Context, opts ExportOptions) (int, error) {
	columns, records, err := p.store.ExportFlat(ctx)
	if err != nil {
		return 0, err
	}
	slog.Info("export view read", "rows", len(records))

	if dir := filepath.Dir(opts.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("error creating export directory: %w", err)
		}
	}

	f, err := os.Create(opts.OutputPath)
	if err != nil {
		return 0, fmt.Errorf("error creating export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return 0, fmt.Errorf("error writing export header: %w", err)
	}
	for _, record := range records {
		if err := w.Write(record); err != nil {
			return 0, fmt.Errorf("error writing export row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("error flushing export file: %w", err)
	}

	slog.Info("export written", "path", opts.OutputPath)
	return len(records), nil
}
