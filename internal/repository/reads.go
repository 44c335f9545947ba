package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/tdot-data/collision-weather-etl/internal/models"
)

func (s *SQLStore) LastIncidentTime(ctx context.Context) (*time.Time, error) {
	// MAX() is an expression column, so sqlite hands the value back as
	// text rather than time.Time; scan loosely and parse.
	var last any
	err := s.db.QueryRowContext(ctx, `SELECT MAX(occ_date_utc) FROM incidents`).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("error reading last incident time: %w", err)
	}
	return parseTimeValue(last)
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

func parseTimeValue(v any) (*time.Time, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		t := val.UTC()
		return &t, nil
	case []byte:
		return parseTimeValue(string(val))
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				u := t.UTC()
				return &u, nil
			}
		}
		return nil, fmt.Errorf("unparseable timestamp value: %q", val)
	default:
		return nil, fmt.Errorf("unexpected timestamp type %T", v)
	}
}

func (s *SQLStore) IncidentCells(ctx context.Context) ([]models.Cell, error) {
	// Literal (0,0) rows are placeholder coordinates, excluded the same
	// as NULL even when an outside writer stored them unrounded.
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT lat_r, lon_r, occ_date_utc
		FROM incidents
		WHERE lat_r IS NOT NULL AND lon_r IS NOT NULL AND occ_date_utc IS NOT NULL
		AND NOT (lat_r = 0 AND lon_r = 0)
	`)
	if err != nil {
		return nil, fmt.Errorf("error reading incident cells: %w", err)
	}
	defer rows.Close()

	return collectCells(rows)
}

func (s *SQLStore) CachedWeatherCells(ctx context.Context) ([]models.Cell, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT lat, lon, hour_utc
		FROM weather_cache
	`)
	if err != nil {
		return nil, fmt.Errorf("error reading cached weather cells: %w", err)
	}
	defer rows.Close()

	return collectCells(rows)
}

// collectCells truncates timestamps to UTC calendar days and dedupes,
// so per-hour cache rows collapse into one cell per day.
func collectCells(rows *sql.Rows) ([]models.Cell, error) {
	type cellKey struct {
		lat, lon float64
		day      string
	}

	seen := make(map[cellKey]struct{})
	var cells []models.Cell

	for rows.Next() {
		var (
			lat, lon float64
			ts       time.Time
		)
		if err := rows.Scan(&lat, &lon, &ts); err != nil {
			return nil, fmt.Errorf("error scanning cell row: %w", err)
		}

		day := dayOf(ts)
		key := cellKey{lat: lat, lon: lon, day: day.Format("2006-01-02")}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		cells = append(cells, models.Cell{Latitude: lat, Longitude: lon, Day: day})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cell rows: %w", err)
	}

	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Latitude != cells[j].Latitude {
			return cells[i].Latitude < cells[j].Latitude
		}
		if cells[i].Longitude != cells[j].Longitude {
			return cells[i].Longitude < cells[j].Longitude
		}
		return cells[i].Day.Before(cells[j].Day)
	})

	return cells, nil
}

func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
