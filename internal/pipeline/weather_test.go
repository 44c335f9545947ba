package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdot-data/collision-weather-etl/internal/models"
)

// weatherPayload builds an archive response with n hours starting at
// date 00:00. Indexes listed in mangled get an unparsable timestamp.
func weatherPayload(t *testing.T, date string, n int, mangled ...int) string {
	t.Helper()

	bad := make(map[int]bool, len(mangled))
	for _, i := range mangled {
		bad[i] = true
	}

	var hourly struct {
		Time          []string  `json:"time"`
		Temperature   []float64 `json:"temperature_2m"`
		Precipitation []float64 `json:"precipitation"`
		Snowfall      []float64 `json:"snowfall"`
		WeatherCode   []int     `json:"weathercode"`
		WindSpeed     []float64 `json:"windspeed_10m"`
		CloudCover    []float64 `json:"cloudcover"`
		Humidity      []float64 `json:"relative_humidity_2m"`
	}
	for i := 0; i < n; i++ {
		ts := fmt.Sprintf("%sT%02d:00", date, i)
		if bad[i] {
			ts = "not-a-timestamp"
		}
		hourly.Time = append(hourly.Time, ts)
		hourly.Temperature = append(hourly.Temperature, -3.5)
		hourly.Precipitation = append(hourly.Precipitation, 0.2)
		hourly.Snowfall = append(hourly.Snowfall, 1.1)
		hourly.WeatherCode = append(hourly.WeatherCode, 71)
		hourly.WindSpeed = append(hourly.WindSpeed, 14.0)
		hourly.CloudCover = append(hourly.CloudCover, 90)
		hourly.Humidity = append(hourly.Humidity, 82)
	}

	body, err := json.Marshal(map[string]any{"hourly": hourly})
	require.NoError(t, err)
	return string(body)
}

func floatPtr(v float64) *float64 { return &v }

func TestWeatherPipeline_ForceModeSingleTarget(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{payloads: map[string]string{
		"latitude=43.65": weatherPayload(t, "2024-01-01", 24),
	}}
	p := NewWeatherPipeline(testConfig(), store, fetcher, clockwork.NewRealClock())

	err := p.Run(context.Background(), WeatherOptions{
		Lat:         floatPtr(43.654),
		Lon:         floatPtr(-79.381),
		Date:        "2024-01-01",
		TriggeredBy: "test",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.callCount())
	assert.Len(t, store.wx, 24)

	run := store.lastRun()
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 24, run.RowCount)
	assert.Equal(t, "test", run.TriggeredBy)
}

func TestWeatherPipeline_MalformedHourSkipped(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{payloads: map[string]string{
		"latitude=43.65": weatherPayload(t, "2024-01-01", 24, 7),
	}}
	p := NewWeatherPipeline(testConfig(), store, fetcher, clockwork.NewRealClock())

	err := p.Run(context.Background(), WeatherOptions{
		Lat: floatPtr(43.65), Lon: floatPtr(-79.38), Date: "2024-01-01",
	})
	require.NoError(t, err)

	assert.Len(t, store.wx, 23)
	assert.Equal(t, models.RunStatusSuccess, store.lastRun().Status)
	assert.Equal(t, 23, store.lastRun().RowCount)
}

func TestWeatherPipeline_BulkModeWithOneFailingTarget(t *testing.T) {
	store := newFakeStore()
	store.incidentCells = []models.Cell{
		{Latitude: 43.65, Longitude: -79.38, Day: day(2024, time.January, 1)},
		{Latitude: 43.61, Longitude: -79.56, Day: day(2024, time.January, 1)},
		{Latitude: 43.75, Longitude: -79.20, Day: day(2024, time.January, 1)},
	}
	fetcher := &fakeFetcher{
		payloads: map[string]string{
			"latitude=43.65": weatherPayload(t, "2024-01-01", 24),
			"latitude=43.75": weatherPayload(t, "2024-01-01", 24),
		},
		failing: []string{"latitude=43.61"},
	}
	p := NewWeatherPipeline(testConfig(), store, fetcher, clockwork.NewRealClock())

	err := p.Run(context.Background(), WeatherOptions{TriggeredBy: "test"})
	require.NoError(t, err)

	assert.Equal(t, 3, fetcher.callCount())
	assert.Len(t, store.wx, 48) // the failing target left its gap open
	assert.Equal(t, models.RunStatusSuccess, store.lastRun().Status)
	assert.Equal(t, 48, store.lastRun().RowCount)

	// Only the failed location is still missing.
	remaining, err := p.targets(context.Background(), WeatherOptions{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, 43.61, remaining[0].Latitude)
}

func TestWeatherPipeline_NothingMissing(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{}
	p := NewWeatherPipeline(testConfig(), store, fetcher, clockwork.NewRealClock())

	err := p.Run(context.Background(), WeatherOptions{})
	require.NoError(t, err)

	assert.Zero(t, fetcher.callCount())
	assert.Equal(t, models.RunStatusSuccess, store.lastRun().Status)
	assert.Zero(t, store.lastRun().RowCount)
}

func TestWeatherPipeline_EmptyHourlyContainer(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{payloads: map[string]string{"latitude=43.65": `{}`}}
	p := NewWeatherPipeline(testConfig(), store, fetcher, clockwork.NewRealClock())

	err := p.Run(context.Background(), WeatherOptions{
		Lat: floatPtr(43.65), Lon: floatPtr(-79.38), Date: "2024-01-01",
	})
	require.NoError(t, err)

	assert.Empty(t, store.wx)
	assert.Equal(t, models.RunStatusSuccess, store.lastRun().Status)
	assert.Zero(t, store.lastRun().RowCount)
}

func TestWeatherPipeline_UpsertFailureFailsRun(t *testing.T) {
	store := newFakeStore()
	store.failUpsertWeather = true
	fetcher := &fakeFetcher{payloads: map[string]string{
		"latitude=43.65": weatherPayload(t, "2024-01-01", 24),
	}}
	p := NewWeatherPipeline(testConfig(), store, fetcher, clockwork.NewRealClock())

	err := p.Run(context.Background(), WeatherOptions{
		Lat: floatPtr(43.65), Lon: floatPtr(-79.38), Date: "2024-01-01",
	})
	require.Error(t, err)

	assert.Empty(t, store.wx)
	run := store.lastRun()
	assert.Equal(t, models.RunStatusFailure, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "storage unavailable")
}
