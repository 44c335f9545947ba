package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/tdot-data/collision-weather-etl/internal/models"
)

// ErrMissingEventID marks a feature without a stable identifier. Such
// records are skipped, not fatal to the batch.
var ErrMissingEventID = errors.New("feature has no EVENT_UNIQUE_ID")

// FeatureResponse is the envelope of the collision feature service.
// Features stay raw so the full payload can be stored verbatim, and the
// whole response body is kept for the on-disk archive.
type FeatureResponse struct {
	Features []json.RawMessage `json:"features"`

	raw []byte
}

func (r *FeatureResponse) UnmarshalJSON(b []byte) error {
	var envelope struct {
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return err
	}
	r.Features = envelope.Features
	r.raw = append([]byte(nil), b...)
	return nil
}

// Raw returns the response body exactly as fetched.
func (r *FeatureResponse) Raw() []byte {
	return r.raw
}

type feature struct {
	Attributes featureAttributes `json:"attributes"`
}

type featureAttributes struct {
	ObjectID  int64    `json:"OBJECTID"`
	EventID   string   `json:"EVENT_UNIQUE_ID"`
	OccDate   *int64   `json:"OCC_DATE"` // ms epoch at midnight
	OccHour   *flexInt `json:"OCC_HOUR"` // hour of day, local civil time
	Latitude  *float64 `json:"LAT_WGS84"`
	Longitude *float64 `json:"LONG_WGS84"`
}

// flexInt accepts a JSON number or a numeric string. The feed has
// shipped OCC_HOUR both ways.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	if s == "" {
		return fmt.Errorf("empty numeric value")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	*f = flexInt(n)
	return nil
}

// BuildIncidentURL builds the feature-service query for one local
// calendar day: the half-open window [day 00:00, day+1 00:00).
func BuildIncidentURL(base string, dayLocal time.Time) string {
	start := dayLocal.Format("2006-01-02") + " 00:00:00"
	end := dayLocal.AddDate(0, 0, 1).Format("2006-01-02") + " 00:00:00"

	where := fmt.Sprintf("OCC_DATE >= TIMESTAMP '%s' AND OCC_DATE < TIMESTAMP '%s'", start, end)

	params := url.Values{}
	params.Set("where", where)
	params.Set("outFields", "*")
	params.Set("f", "json")
	params.Set("resultRecordCount", "1000")
	params.Set("resultOffset", "0")

	return base + "?" + params.Encode()
}

// ParseFeature converts one raw feature into an incident.
//
// The coarse OCC_DATE is a millisecond epoch at midnight. When OCC_HOUR
// is present the true occurrence time is reconstructed through the
// source's civil calendar: interpret OCC_DATE in UTC, shift to loc,
// replace the local time-of-day with OCC_HOUR, convert back to UTC.
// Fixed-offset arithmetic would be wrong on DST transition days.
func ParseFeature(raw json.RawMessage, loc *time.Location) (*models.Incident, error) {
	var f feature
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("error decoding feature: %w", err)
	}

	attrs := f.Attributes
	if attrs.EventID == "" {
		return nil, fmt.Errorf("OBJECTID=%d: %w", attrs.ObjectID, ErrMissingEventID)
	}

	inc := &models.Incident{
		EventID:  attrs.EventID,
		ObjectID: attrs.ObjectID,
		Raw:      raw,
	}

	// Invalid or missing coordinates normalize to unknown, never to a
	// literal (0,0).
	if attrs.Latitude != nil && attrs.Longitude != nil &&
		!(*attrs.Latitude == 0 && *attrs.Longitude == 0) {
		inc.Latitude = attrs.Latitude
		inc.Longitude = attrs.Longitude
	}

	if attrs.OccDate != nil {
		occ := time.UnixMilli(*attrs.OccDate).UTC()
		if attrs.OccHour != nil {
			local := occ.In(loc)
			local = time.Date(local.Year(), local.Month(), local.Day(),
				int(*attrs.OccHour), 0, 0, 0, loc)
			occ = local.UTC()
		}
		hour := occ.Truncate(time.Hour)
		inc.OccurredAt = &occ
		inc.OccHourUTC = &hour
	}

	return inc, nil
}
