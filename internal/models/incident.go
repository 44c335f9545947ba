package models

import (
	"math"
	"time"
)

type Incident struct {
	EventID    string // stable external identifier, natural key
	ObjectID   int64  // external surrogate id, may be reused across loads
	OccurredAt *time.Time
	OccHourUTC *time.Time // OccurredAt truncated to the hour, for weather joins
	Latitude   *float64
	Longitude  *float64
	Raw        []byte // original feature JSON, kept verbatim
}

// Cell returns the rounded weather-grid cell this incident maps onto,
// or ok=false when the incident has no usable coordinates. A literal
// (0,0) pair is the upstream null-island placeholder and counts as
// unusable, same as NULL.
func (i *Incident) Cell() (lat, lon float64, ok bool) {
	if i.Latitude == nil || i.Longitude == nil {
		return 0, 0, false
	}
	if *i.Latitude == 0 && *i.Longitude == 0 {
		return 0, 0, false
	}
	return RoundCoord(*i.Latitude), RoundCoord(*i.Longitude), true
}

// RoundCoord rounds a coordinate to 2 decimal places, the grid
// granularity of the weather cache.
func RoundCoord(v float64) float64 {
	return math.Round(v*100) / 100
}
