package pipeline

import (
	"sort"
	"strconv"

	"github.com/tdot-data/collision-weather-etl/internal/models"
)

// MissingRanges computes which weather the cache still lacks: every
// incident cell without at least one cached hour on that day, grouped
// per location into one contiguous [minDay, maxDay] span.
//
// Grouping is the range policy: already-cached days strictly inside a
// span get re-fetched. That trades extra rows for one archive request
// per location instead of one per day.
//
// Output order is deterministic (latitude, longitude, start day) so
// repeated runs over an unchanged incidents table enumerate targets
// identically.
func MissingRanges(incidents, cached []models.Cell) []models.CellRange {
	missing := missingCells(incidents, cached)

	type locKey struct{ lat, lon float64 }
	spans := make(map[locKey]*models.CellRange)

	for _, c := range missing {
		key := locKey{lat: c.Latitude, lon: c.Longitude}
		span, ok := spans[key]
		if !ok {
			spans[key] = &models.CellRange{
				Latitude:  c.Latitude,
				Longitude: c.Longitude,
				StartDay:  c.Day,
				EndDay:    c.Day,
			}
			continue
		}
		if c.Day.Before(span.StartDay) {
			span.StartDay = c.Day
		}
		if c.Day.After(span.EndDay) {
			span.EndDay = c.Day
		}
	}

	out := make([]models.CellRange, 0, len(spans))
	for _, span := range spans {
		out = append(out, *span)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Latitude != out[j].Latitude {
			return out[i].Latitude < out[j].Latitude
		}
		if out[i].Longitude != out[j].Longitude {
			return out[i].Longitude < out[j].Longitude
		}
		return out[i].StartDay.Before(out[j].StartDay)
	})

	return out
}

// missingCells is the per-day difference: incident cells minus cells
// with any cached hour. Ascending day order within a location.
func missingCells(incidents, cached []models.Cell) []models.Cell {
	have := make(map[string]struct{}, len(cached))
	for _, c := range cached {
		have[cellKey(c)] = struct{}{}
	}

	seen := make(map[string]struct{})
	var missing []models.Cell
	for _, c := range incidents {
		key := cellKey(c)
		if _, ok := have[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		missing = append(missing, c)
	}

	sort.Slice(missing, func(i, j int) bool {
		if missing[i].Latitude != missing[j].Latitude {
			return missing[i].Latitude < missing[j].Latitude
		}
		if missing[i].Longitude != missing[j].Longitude {
			return missing[i].Longitude < missing[j].Longitude
		}
		return missing[i].Day.Before(missing[j].Day)
	})

	return missing
}

func cellKey(c models.Cell) string {
	return c.Day.Format("2006-01-02") + "|" +
		formatCell(c.Latitude) + "|" + formatCell(c.Longitude)
}

func formatCell(v float64) string {
	// 2 decimals is the grid granularity; v == 0 normalizes a possible
	// -0.00 so both signs land on the same key.
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
