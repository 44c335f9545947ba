package main

import (
	"context"
	"flag"
	"log/slog"

	"github.com/joho/godotenv"

	"github.com/tdot-data/collision-weather-etl/internal/config"
	"github.com/tdot-data/collision-weather-etl/internal/logging"
	"github.com/tdot-data/collision-weather-etl/internal/pipeline"
	"github.com/tdot-data/collision-weather-etl/internal/repository"
)

func main() {
	_ = godotenv.Load()

	output := flag.String("output", "data/export/incidents.csv", "Path for the exported CSV file")
	triggeredBy := flag.String("triggered-by", "manual", "Tag recorded in the run ledger")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	store, err := repository.Open(cfg.DB)
	if err != nil {
		logging.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	p := pipeline.NewExportPipeline(store)
	opts := pipeline.ExportOptions{
		OutputPath:  *output,
		TriggeredBy: *triggeredBy,
	}
	if err := p.Run(context.Background(), opts); err != nil {
		logging.Fatalf("Export run failed: %v", err)
	}

	slog.Info("done")
}
