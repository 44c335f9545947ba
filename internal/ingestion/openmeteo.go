package ingestion

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tdot-data/collision-weather-etl/internal/models"
)

// The seven hourly series the cache stores. Order matters only for the
// query string; rows are keyed by timestamp.
const hourlySeriesParam = "temperature_2m,precipitation,snowfall,weathercode,windspeed_10m,cloudcover,relative_humidity_2m"

// BuildWeatherURL builds an archive query for one rounded location over
// an inclusive UTC date range.
func BuildWeatherURL(base string, lat, lon float64, startDay, endDay time.Time) string {
	params := url.Values{}
	params.Set("latitude", formatCoord(models.RoundCoord(lat)))
	params.Set("longitude", formatCoord(models.RoundCoord(lon)))
	params.Set("start_date", startDay.Format("2006-01-02"))
	params.Set("end_date", endDay.Format("2006-01-02"))
	params.Set("hourly", hourlySeriesParam)
	params.Set("timezone", "UTC")
	return base + "?" + params.Encode()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WeatherResponse is the archive API payload: parallel hourly arrays,
// one element per hour. A response without the hourly container decodes
// to zero-length series, which callers treat as zero rows.
type WeatherResponse struct {
	Hourly HourlySeries `json:"hourly"`
}

type HourlySeries struct {
	Time          []string  `json:"time"`
	Temperature   []float64 `json:"temperature_2m"`
	Precipitation []float64 `json:"precipitation"`
	Snowfall      []float64 `json:"snowfall"`
	WeatherCode   []int     `json:"weathercode"`
	WindSpeed     []float64 `json:"windspeed_10m"`
	CloudCover    []float64 `json:"cloudcover"`
	Humidity      []float64 `json:"relative_humidity_2m"`
}

// Open-Meteo timestamps come as "2006-01-02T15:04"; RFC3339 is accepted
// as a fallback.
var hourLayouts = []string{"2006-01-02T15:04", time.RFC3339}

// Row assembles the weather row at index i for the given rounded
// location. A malformed timestamp or a series shorter than i+1 yields
// an error; callers skip that hour only.
func (h *HourlySeries) Row(i int, lat, lon float64) (*models.WeatherHour, error) {
	if i < 0 || i >= len(h.Time) {
		return nil, fmt.Errorf("hour index %d out of range", i)
	}

	ts, err := parseHour(h.Time[i])
	if err != nil {
		return nil, err
	}

	row := &models.WeatherHour{
		Latitude:  models.RoundCoord(lat),
		Longitude: models.RoundCoord(lon),
		HourUTC:   ts,
	}

	for _, m := range []struct {
		name   string
		series []float64
		dst    *float64
	}{
		{"temperature_2m", h.Temperature, &row.Temperature},
		{"precipitation", h.Precipitation, &row.Precipitation},
		{"snowfall", h.Snowfall, &row.Snowfall},
		{"windspeed_10m", h.WindSpeed, &row.WindSpeed},
		{"cloudcover", h.CloudCover, &row.CloudCover},
		{"relative_humidity_2m", h.Humidity, &row.Humidity},
	} {
		if i >= len(m.series) {
			return nil, fmt.Errorf("series %s has no element %d", m.name, i)
		}
		*m.dst = m.series[i]
	}

	if i >= len(h.WeatherCode) {
		return nil, fmt.Errorf("series weathercode has no element %d", i)
	}
	row.WeatherCode = h.WeatherCode[i]

	return row, nil
}

func parseHour(s string) (time.Time, error) {
	for _, layout := range hourLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("malformed hour timestamp: %q", s)
}
