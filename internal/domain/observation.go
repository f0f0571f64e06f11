package domain

import (
	"math"
	"time"
)

// First-class column names of the model_features table.
const (
	ColTemp      = "temp"
	ColWindSpeed = "wind_speed"
	ColNO2       = "no2"
	ColO3        = "o3"
	ColPM25      = "pm25"
	ColLat       = "lat"
	ColLon       = "lon"

	// ColHourOfDay is derived from the observation timestamp.
	ColHourOfDay = "hour_of_day"
)

// TimeWeightSeconds scales the absolute time difference so that time and
// space contribute comparably to the nearest-observation distance.
const TimeWeightSeconds = 100000.0

// Observation is one row of the unified feature table.
type Observation struct {
	Timestamp time.Time `json:"datetime_utc"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	PM25      *float64  `json:"pm25,omitempty"`
	NO2       *float64  `json:"no2,omitempty"`
	O3        *float64  `json:"o3,omitempty"`
	Temp      *float64  `json:"temp,omitempty"`
	WindSpeed *float64  `json:"wind_speed,omitempty"`

	OtherFeatures map[string]float64 `json:"other_features,omitempty"`
}

// Value resolves a column by name. The second return is false when the
// column is not measured for this observation or holds a non-finite value.
func (o Observation) Value(name string) (float64, bool) {
	var v *float64
	switch name {
	case ColLat:
		return o.Lat, IsFinite(o.Lat)
	case ColLon:
		return o.Lon, IsFinite(o.Lon)
	case ColHourOfDay:
		if o.Timestamp.IsZero() {
			return 0, false
		}
		return float64(o.Timestamp.UTC().Hour()), true
	case ColPM25:
		v = o.PM25
	case ColNO2:
		v = o.NO2
	case ColO3:
		v = o.O3
	case ColTemp:
		v = o.Temp
	case ColWindSpeed:
		v = o.WindSpeed
	default:
		f, ok := o.OtherFeatures[name]
		if !ok || !IsFinite(f) {
			return 0, false
		}
		return f, true
	}
	if v == nil || !IsFinite(*v) {
		return 0, false
	}
	return *v, true
}

// Distance is the combined spatio-temporal distance between an observation
// and a query point.
func (o Observation) Distance(lat, lon float64, at time.Time) float64 {
	dLat := o.Lat - lat
	dLon := o.Lon - lon
	dt := math.Abs(o.Timestamp.Sub(at).Seconds())
	return dLat*dLat + dLon*dLon + dt/TimeWeightSeconds
}

// TimeRange is an inclusive [Start, End] interval of UTC instants.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range, bounds included.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// BoundingBox is an inclusive latitude/longitude rectangle.
type BoundingBox struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// Contains reports whether the point lies inside the box, edges included.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

// Query filters a feature-table read. Zero values mean "no filter".
type Query struct {
	TimeRange *TimeRange
	BBox      *BoundingBox
	Limit     int
}

// Float returns a pointer to v, for building observations with measured values.
func Float(v float64) *float64 {
	return &v
}

// IsFinite reports whether v is neither NaN nor ±Inf.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
