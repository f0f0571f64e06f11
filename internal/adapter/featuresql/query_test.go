package featuresql

import (
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFetch_NoFilter(t *testing.T) {
	q, args := BuildFetch(domain.Query{}, Postgres)
	assert.Equal(t, "SELECT "+Columns+" FROM model_features ORDER BY datetime_utc, lat, lon", q)
	assert.Empty(t, args)
}

func TestBuildFetch_PostgresFilters(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	q, args := BuildFetch(domain.Query{
		TimeRange: &domain.TimeRange{Start: start, End: end},
		BBox:      &domain.BoundingBox{LatMin: 4, LatMax: 5, LonMin: -75, LonMax: -74},
		Limit:     100,
	}, Postgres)

	assert.Equal(t, "SELECT "+Columns+" FROM model_features"+
		" WHERE datetime_utc >= $1 AND datetime_utc <= $2 AND lat BETWEEN $3 AND $4 AND lon BETWEEN $5 AND $6"+
		" ORDER BY datetime_utc, lat, lon LIMIT 100", q)
	assert.Equal(t, []any{start, end, 4.0, 5.0, -75.0, -74.0}, args)
}

func TestBuildFetch_SQLiteEncodesUnixSeconds(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args := BuildFetch(domain.Query{TimeRange: &domain.TimeRange{Start: start, End: start}}, SQLite)

	assert.Contains(t, q, "datetime_utc >= ? AND datetime_utc <= ?")
	assert.Equal(t, []any{start.Unix(), start.Unix()}, args)
}

func TestParseOtherFeatures(t *testing.T) {
	m, err := ParseOtherFeatures([]byte(`{"pm10": 31.5, "humidity": null, "wind_dir": "N", "pressure": 1012}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"pm10": 31.5, "pressure": 1012}, m)

	m, err = ParseOtherFeatures(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = ParseOtherFeatures([]byte(`{"humidity": null}`))
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = ParseOtherFeatures([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestPredictionColumn(t *testing.T) {
	col, err := PredictionColumn("pm25")
	require.NoError(t, err)
	assert.Equal(t, "pm25_pred", col)

	_, err = PredictionColumn("pm25; DROP TABLE predictions")
	assert.Error(t, err)
	_, err = PredictionColumn("pm25+no2")
	assert.Error(t, err)
}
