// Package featuresql holds the SQL shared by the Postgres and SQLite
// feature-store adapters.
package featuresql

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
)

// Columns is the select list of every feature-table read, in scan order.
const Columns = "datetime_utc, lat, lon, pm25, no2, o3, temp, wind_speed, other_features"

// Dialect abstracts the placeholder syntax and timestamp encoding.
type Dialect struct {
	Placeholder func(n int) string
	Timestamp   func(t time.Time) any
}

// Postgres uses $n placeholders and native timestamptz values.
var Postgres = Dialect{
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	Timestamp:   func(t time.Time) any { return t.UTC() },
}

// SQLite uses ? placeholders and integer unix seconds.
var SQLite = Dialect{
	Placeholder: func(int) string { return "?" },
	Timestamp:   func(t time.Time) any { return t.UTC().Unix() },
}

// BuildFetch renders the feature-table read for q. Rows come back in a
// stable order so training splits are reproducible.
func BuildFetch(q domain.Query, d Dialect) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return d.Placeholder(len(args))
	}
	if q.TimeRange != nil {
		clauses = append(clauses,
			"datetime_utc >= "+arg(d.Timestamp(q.TimeRange.Start)),
			"datetime_utc <= "+arg(d.Timestamp(q.TimeRange.End)),
		)
	}
	if q.BBox != nil {
		clauses = append(clauses,
			fmt.Sprintf("lat BETWEEN %s AND %s", arg(q.BBox.LatMin), arg(q.BBox.LatMax)),
			fmt.Sprintf("lon BETWEEN %s AND %s", arg(q.BBox.LonMin), arg(q.BBox.LonMax)),
		)
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + Columns + " FROM model_features")
	if len(clauses) > 0 {
		sb.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}
	sb.WriteString(" ORDER BY datetime_utc, lat, lon")
	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", q.Limit))
	}
	return sb.String(), args
}

// ParseOtherFeatures decodes the other_features JSON object. Null and
// non-numeric entries are dropped; an empty input yields a nil map.
func ParseOtherFeatures(raw []byte) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode other_features: %w", err)
	}
	var out map[string]float64
	for k, v := range m {
		f, ok := v.(float64)
		if !ok || !domain.IsFinite(f) {
			continue
		}
		if out == nil {
			out = make(map[string]float64, len(m))
		}
		out[k] = f
	}
	return out, nil
}

// Nullable converts a scanned nullable column into an observation field.
func Nullable(v *float64) *float64 {
	if v == nil || !domain.IsFinite(*v) {
		return nil
	}
	return v
}

var identPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// PredictionColumn returns the prediction-log column for target, or an error
// when the target is not a safe identifier.
func PredictionColumn(target string) (string, error) {
	if !identPattern.MatchString(target) {
		return "", fmt.Errorf("invalid target name %q for prediction log", target)
	}
	return target + "_pred", nil
}
