package features

import (
	"fmt"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
)

// DefaultPolicy decides the value of a schema feature the live lookup
// cannot supply.
type DefaultPolicy string

const (
	// DefaultMedian reuses the training-time median of the column.
	DefaultMedian DefaultPolicy = "median"
	// DefaultZero fills 0, the historical fallback.
	DefaultZero DefaultPolicy = "zero"
)

// ParseDefaultPolicy validates a policy name.
func ParseDefaultPolicy(s string) (DefaultPolicy, error) {
	switch p := DefaultPolicy(s); p {
	case DefaultMedian, DefaultZero:
		return p, nil
	default:
		return "", fmt.Errorf("unknown default policy %q (want median or zero)", s)
	}
}

// Value returns the default for name. The median policy falls back to zero
// for columns without a recorded median.
func (p DefaultPolicy) Value(name string, medians map[string]float64) float64 {
	if p == DefaultMedian {
		if m, ok := medians[name]; ok && domain.IsFinite(m) {
			return m
		}
	}
	return 0
}

// BuildRow assembles the inference row for a query point in schema order.
// lat, lon and hour_of_day come from the query; every other feature is read
// from nearest when it carries the column, and otherwise defaulted by the
// policy. The returned slice lists the defaulted names in schema order.
func BuildRow(schema domain.FeatureSchema, medians map[string]float64, policy DefaultPolicy,
	lat, lon float64, at time.Time, nearest *domain.Observation,
) (domain.FeatureRow, []string) {
	row := domain.FeatureRow{
		Names:  make([]string, len(schema)),
		Values: make([]float64, len(schema)),
	}
	var filled []string
	for i, name := range schema {
		row.Names[i] = name
		var (
			v  float64
			ok bool
		)
		switch name {
		case domain.ColLat:
			v, ok = lat, true
		case domain.ColLon:
			v, ok = lon, true
		case domain.ColHourOfDay:
			v, ok = float64(at.UTC().Hour()), true
		default:
			if nearest != nil {
				v, ok = nearest.Value(name)
			}
		}
		if !ok || !domain.IsFinite(v) {
			v = policy.Value(name, medians)
			filled = append(filled, name)
		}
		row.Values[i] = v
	}
	return row, filled
}

// NeedsLookup reports whether any schema feature must come from an
// observation rather than from the query itself.
func NeedsLookup(schema domain.FeatureSchema) bool {
	for _, name := range schema {
		switch name {
		case domain.ColLat, domain.ColLon, domain.ColHourOfDay:
		default:
			return true
		}
	}
	return false
}
