package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tdot-data/collision-weather-etl/internal/models"
)

type sqlTx struct {
	tx      *sql.Tx
	dialect string
}

func (s *SQLStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	return &sqlTx{tx: tx, dialect: s.dialect}, nil
}

// The raw payload column is JSONB on Postgres and plain TEXT on SQLite,
// so the insert differs in that one expression.
const upsertIncidentPostgres = `
	INSERT INTO incidents (event_id, objectid, raw, occ_date_utc, occ_hour_utc, lat, lon, lat_r, lon_r)
	VALUES ($1, $2, CAST($3 AS JSONB), $4, $5, $6, $7, $8, $9)
	ON CONFLICT (event_id) DO UPDATE SET
		objectid = EXCLUDED.objectid,
		raw = EXCLUDED.raw,
		occ_date_utc = EXCLUDED.occ_date_utc,
		occ_hour_utc = EXCLUDED.occ_hour_utc,
		lat = EXCLUDED.lat,
		lon = EXCLUDED.lon,
		lat_r = EXCLUDED.lat_r,
		lon_r = EXCLUDED.lon_r
`

const upsertIncidentSQLite = `
	INSERT INTO incidents (event_id, objectid, raw, occ_date_utc, occ_hour_utc, lat, lon, lat_r, lon_r)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (event_id) DO UPDATE SET
		objectid = EXCLUDED.objectid,
		raw = EXCLUDED.raw,
		occ_date_utc = EXCLUDED.occ_date_utc,
		occ_hour_utc = EXCLUDED.occ_hour_utc,
		lat = EXCLUDED.lat,
		lon = EXCLUDED.lon,
		lat_r = EXCLUDED.lat_r,
		lon_r = EXCLUDED.lon_r
`

func (t *sqlTx) UpsertIncident(ctx context.Context, inc *models.Incident) error {
	query := upsertIncidentSQLite
	if t.dialect == "postgres" {
		query = upsertIncidentPostgres
	}

	var latR, lonR *float64
	if lat, lon, ok := inc.Cell(); ok {
		latR, lonR = &lat, &lon
	}

	_, err := t.tx.ExecContext(ctx, query,
		inc.EventID,
		inc.ObjectID,
		string(inc.Raw),
		inc.OccurredAt,
		inc.OccHourUTC,
		inc.Latitude,
		inc.Longitude,
		latR,
		lonR,
	)
	if err != nil {
		return fmt.Errorf("error upserting incident %s: %w", inc.EventID, err)
	}
	return nil
}

const upsertWeatherHour = `
	INSERT INTO weather_cache
		(lat, lon, hour_utc, temperature, precipitation, snowfall, weathercode, windspeed, cloudcover, humidity)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (lat, lon, hour_utc) DO UPDATE SET
		temperature = EXCLUDED.temperature,
		precipitation = EXCLUDED.precipitation,
		snowfall = EXCLUDED.snowfall,
		weathercode = EXCLUDED.weathercode,
		windspeed = EXCLUDED.windspeed,
		cloudcover = EXCLUDED.cloudcover,
		humidity = EXCLUDED.humidity
`

func (t *sqlTx) UpsertWeatherHour(ctx context.Context, h *models.WeatherHour) error {
	_, err := t.tx.ExecContext(ctx, upsertWeatherHour,
		models.RoundCoord(h.Latitude),
		models.RoundCoord(h.Longitude),
		h.HourUTC.UTC(),
		h.Temperature,
		h.Precipitation,
		h.Snowfall,
		h.WeatherCode,
		h.WindSpeed,
		h.CloudCover,
		h.Humidity,
	)
	if err != nil {
		return fmt.Errorf("error upserting weather hour (%v, %v, %v): %w",
			h.Latitude, h.Longitude, h.HourUTC, err)
	}
	return nil
}

func (t *sqlTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqlTx) Rollback() error {
	return t.tx.Rollback()
}
