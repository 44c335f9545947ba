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

	lat := flag.Float64("lat", 0, "Latitude (force mode)")
	lon := flag.Float64("lon", 0, "Longitude (force mode)")
	date := flag.String("date", "", "Date YYYY-MM-DD (force mode)")
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

	opts := pipeline.WeatherOptions{
		Date:        *date,
		TriggeredBy: *triggeredBy,
	}
	// Force mode needs all three flags; a zero coordinate alone is not a
	// target.
	latSet, lonSet := false, false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "lat":
			latSet = true
		case "lon":
			lonSet = true
		}
	})
	if latSet && lonSet && *date != "" {
		opts.Lat = lat
		opts.Lon = lon
	} else if latSet || lonSet || *date != "" {
		logging.Fatalf("Force mode requires --lat, --lon and --date together")
	}

	p := pipeline.NewWeatherPipeline(cfg, store, fetcher, clock)
	if err := p.Run(context.Background(), opts); err != nil {
		logging.Fatalf("Weather run failed: %v", err)
	}

	slog.Info("done")
}
