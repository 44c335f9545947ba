package ingestion

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func sampleHourly(t *testing.T, hours int) *HourlySeries {
	t.Helper()

	h := &HourlySeries{}
	for i := 0; i < hours; i++ {
		ts := time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC)
		h.Time = append(h.Time, ts.Format("2006-01-02T15:04"))
		h.Temperature = append(h.Temperature, -3.5+float64(i)*0.1)
		h.Precipitation = append(h.Precipitation, 0)
		h.Snowfall = append(h.Snowfall, 0.2)
		h.WeatherCode = append(h.WeatherCode, 71)
		h.WindSpeed = append(h.WindSpeed, 14.2)
		h.CloudCover = append(h.CloudCover, 95)
		h.Humidity = append(h.Humidity, 88)
	}
	return h
}

func TestHourlySeries_Row(t *testing.T) {
	h := sampleHourly(t, 24)

	row, err := h.Row(5, 43.6512, -79.3799)
	if err != nil {
		t.Fatalf("Row failed: %v", err)
	}
	if row.Latitude != 43.65 || row.Longitude != -79.38 {
		t.Errorf("expected rounded coordinates, got (%v, %v)", row.Latitude, row.Longitude)
	}
	want := time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)
	if !row.HourUTC.Equal(want) {
		t.Errorf("expected hour %v, got %v", want, row.HourUTC)
	}
	if row.WeatherCode != 71 {
		t.Errorf("expected weathercode 71, got %d", row.WeatherCode)
	}
}

func TestHourlySeries_Row_MalformedTimestamp(t *testing.T) {
	h := sampleHourly(t, 3)
	h.Time[1] = "not-a-timestamp"

	if _, err := h.Row(1, 43.65, -79.38); err == nil {
		t.Error("expected error for malformed timestamp")
	}
	// Siblings are unaffected.
	if _, err := h.Row(0, 43.65, -79.38); err != nil {
		t.Errorf("Row(0) failed: %v", err)
	}
	if _, err := h.Row(2, 43.65, -79.38); err != nil {
		t.Errorf("Row(2) failed: %v", err)
	}
}

func TestHourlySeries_Row_ShortSeries(t *testing.T) {
	h := sampleHourly(t, 3)
	h.Humidity = h.Humidity[:2]

	if _, err := h.Row(2, 43.65, -79.38); err == nil {
		t.Error("expected error for truncated measurement series")
	}
}

func TestHourlySeries_Row_RFC3339Fallback(t *testing.T) {
	h := sampleHourly(t, 1)
	h.Time[0] = "2024-01-01T00:00:00Z"

	row, err := h.Row(0, 43.65, -79.38)
	if err != nil {
		t.Fatalf("Row failed: %v", err)
	}
	if !row.HourUTC.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected hour: %v", row.HourUTC)
	}
}

func TestWeatherResponse_MissingHourlyContainer(t *testing.T) {
	var resp WeatherResponse
	if err := json.Unmarshal([]byte(`{"latitude":43.65,"longitude":-79.38}`), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(resp.Hourly.Time) != 0 {
		t.Errorf("expected zero hours, got %d", len(resp.Hourly.Time))
	}
}

func TestBuildWeatherURL(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	u := BuildWeatherURL("https://example.test/archive", 43.6512, -79.3799, start, end)

	for _, want := range []string{
		"latitude=43.65",
		"longitude=-79.38",
		"start_date=2024-01-01",
		"end_date=2024-01-03",
		"timezone=UTC",
		"temperature_2m",
		"relative_humidity_2m",
	} {
		if !strings.Contains(u, want) {
			t.Errorf("URL missing %q: %s", want, u)
		}
	}
}
