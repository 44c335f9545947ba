package main

import (
	"context"
	"flag"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/tdot-data/collision-weather-etl/internal/config"
	"github.com/tdot-data/collision-weather-etl/internal/ingestion"
	"github.com/tdot-data/collision-weather-etl/internal/logging"
	"github.com/tdot-data/collision-weather-etl/internal/pipeline"
	"github.com/tdot-data/collision-weather-etl/internal/repository"
)

func main() {
	_ = godotenv.Load()

	startDate := flag.String("start-date", "", "Start date YYYY-MM-DD (local), force mode")
	endDate := flag.String("end-date", "", "End date YYYY-MM-DD (local), force mode")
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

	clock := clockwork.NewRealClock()
	fetcher := ingestion.NewClient(cfg.Fetch, clock)

	p, err := pipeline.NewIncidentPipeline(cfg, store, fetcher, clock)
	if err != nil {
		logging.Fatalf("Failed to build incident pipeline: %v", err)
	}

	opts := pipeline.IncidentOptions{
		StartDate:   *startDate,
		EndDate:     *endDate,
		TriggeredBy: *triggeredBy,
	}
	if err := p.Run(context.Background(), opts); err != nil {
		logging.Fatalf("Incident run failed: %v", err)
	}

	slog.Info("done")
}
