package models

import "time"

// WeatherHour is one hourly observation for a rounded grid cell.
// Latitude and Longitude are already rounded to 2 decimals; together
// with HourUTC they form the natural key of the cache.
type WeatherHour struct {
	Latitude      float64
	Longitude     float64
	HourUTC       time.Time
	Temperature   float64
	Precipitation float64
	Snowfall      float64
	WeatherCode   int
	WindSpeed     float64
	CloudCover    float64
	Humidity      float64
}

// Cell identifies one rounded location on one UTC calendar day.
type Cell struct {
	Latitude  float64
	Longitude float64
	Day       time.Time // midnight UTC
}

// CellRange is a contiguous day span of missing weather for one location.
type CellRange struct {
	Latitude  float64
	Longitude float64
	StartDay  time.Time
	EndDay    time.Time
}
