package repository

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/tdot-data/collision-weather-etl/internal/config"
)

// SQLStore implements Store on top of database/sql. Production runs use
// the pgx Postgres driver; local runs and tests use modernc sqlite.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// Open connects to the configured database, pings it and applies the
// schema. The connection is held for the lifetime of one invocation.
func Open(cfg config.DatabaseConfig) (*SQLStore, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.Driver {
	case "postgres":
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
			url.QueryEscape(cfg.User), url.QueryEscape(cfg.Password),
			cfg.Host, cfg.Port, cfg.Name)
		db, err = sql.Open("pgx", dsn)
	case "sqlite":
		// _time_format pins how time.Time binds are rendered so stored
		// timestamps compare and join consistently.
		db, err = sql.Open("sqlite", cfg.Path+"?_time_format=sqlite")
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLStore{db: db, dialect: cfg.Driver}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

const schemaPostgres = `
	CREATE TABLE IF NOT EXISTS incidents (
		event_id TEXT PRIMARY KEY,
		objectid BIGINT,
		raw JSONB,
		occ_date_utc TIMESTAMPTZ,
		occ_hour_utc TIMESTAMPTZ,
		lat DOUBLE PRECISION,
		lon DOUBLE PRECISION,
		lat_r DOUBLE PRECISION,
		lon_r DOUBLE PRECISION
	);

	CREATE TABLE IF NOT EXISTS weather_cache (
		lat DOUBLE PRECISION NOT NULL,
		lon DOUBLE PRECISION NOT NULL,
		hour_utc TIMESTAMPTZ NOT NULL,
		temperature DOUBLE PRECISION NOT NULL,
		precipitation DOUBLE PRECISION NOT NULL,
		snowfall DOUBLE PRECISION NOT NULL,
		weathercode INTEGER NOT NULL,
		windspeed DOUBLE PRECISION NOT NULL,
		cloudcover DOUBLE PRECISION NOT NULL,
		humidity DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (lat, lon, hour_utc)
	);

	CREATE TABLE IF NOT EXISTS run_log (
		run_id TEXT PRIMARY KEY,
		pipeline_name TEXT NOT NULL,
		status TEXT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		row_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		triggered_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_incidents_occ_date ON incidents(occ_date_utc);
	CREATE INDEX IF NOT EXISTS idx_incidents_cell ON incidents(lat_r, lon_r);

	CREATE OR REPLACE VIEW incidents_flat AS
	SELECT
		i.event_id,
		i.objectid,
		i.occ_date_utc,
		i.lat,
		i.lon,
		w.temperature,
		w.precipitation,
		w.snowfall,
		w.weathercode,
		w.windspeed,
		w.cloudcover,
		w.humidity
	FROM incidents i
	LEFT JOIN weather_cache w
	  ON w.lat = i.lat_r
	 AND w.lon = i.lon_r
	 AND w.hour_utc = i.occ_hour_utc;
`

const schemaSQLite = `
	CREATE TABLE IF NOT EXISTS incidents (
		event_id TEXT PRIMARY KEY,
		objectid INTEGER,
		raw TEXT,
		occ_date_utc DATETIME,
		occ_hour_utc DATETIME,
		lat REAL,
		lon REAL,
		lat_r REAL,
		lon_r REAL
	);

	CREATE TABLE IF NOT EXISTS weather_cache (
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		hour_utc DATETIME NOT NULL,
		temperature REAL NOT NULL,
		precipitation REAL NOT NULL,
		snowfall REAL NOT NULL,
		weathercode INTEGER NOT NULL,
		windspeed REAL NOT NULL,
		cloudcover REAL NOT NULL,
		humidity REAL NOT NULL,
		PRIMARY KEY (lat, lon, hour_utc)
	);

	CREATE TABLE IF NOT EXISTS run_log (
		run_id TEXT PRIMARY KEY,
		pipeline_name TEXT NOT NULL,
		status TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		row_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		triggered_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_incidents_occ_date ON incidents(occ_date_utc);
	CREATE INDEX IF NOT EXISTS idx_incidents_cell ON incidents(lat_r, lon_r);

	CREATE VIEW IF NOT EXISTS incidents_flat AS
	SELECT
		i.event_id,
		i.objectid,
		i.occ_date_utc,
		i.lat,
		i.lon,
		w.temperature,
		w.precipitation,
		w.snowfall,
		w.weathercode,
		w.windspeed,
		w.cloudcover,
		w.humidity
	FROM incidents i
	LEFT JOIN weather_cache w
	  ON w.lat = i.lat_r
	 AND w.lon = i.lon_r
	 AND w.hour_utc = i.occ_hour_utc;
`

func (s *SQLStore) migrate() error {
	schema := schemaSQLite
	if s.dialect == "postgres" {
		schema = schemaPostgres
	}
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
