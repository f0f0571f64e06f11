package sqlite

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/couchcryptid/air-quality-model/internal/features"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, time.February, 10, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedObservations() []domain.Observation {
	return []domain.Observation{
		{Timestamp: t0, Lat: 4.60, Lon: -74.08, PM25: domain.Float(10), Temp: domain.Float(14)},
		{Timestamp: t0.Add(time.Hour), Lat: 4.71, Lon: -74.07, PM25: domain.Float(20), NO2: domain.Float(9),
			OtherFeatures: map[string]float64{"humidity": 77}},
		{Timestamp: t0.Add(2 * time.Hour), Lat: 6.25, Lon: -75.56, PM25: domain.Float(30), WindSpeed: domain.Float(3)},
	}
}

func TestFetch_RoundTripsObservations(t *testing.T) {
	s := newTestStore(t)
	want := seedObservations()
	require.NoError(t, s.InsertObservations(context.Background(), want))

	got, err := s.Fetch(context.Background(), domain.Query{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFetch_Filters(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertObservations(context.Background(), seedObservations()))

	got, err := s.Fetch(context.Background(), domain.Query{
		TimeRange: &domain.TimeRange{Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour)},
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.Fetch(context.Background(), domain.Query{
		BBox: &domain.BoundingBox{LatMin: 4, LatMax: 5, LonMin: -75, LonMax: -74},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 4.60, got[0].Lat)

	got, err = s.Fetch(context.Background(), domain.Query{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNearest_MatchesInMemoryScan(t *testing.T) {
	s := newTestStore(t)
	obs := seedObservations()
	require.NoError(t, s.InsertObservations(context.Background(), obs))

	queries := []struct {
		lat, lon float64
		at       time.Time
	}{
		{4.71, -74.07, t0.Add(time.Hour)},
		{4.65, -74.10, t0},
		{6.0, -75.0, t0.Add(90 * time.Minute)},
		{0, 0, t0.Add(-48 * time.Hour)},
	}
	for _, q := range queries {
		got, ok, err := s.Nearest(context.Background(), q.lat, q.lon, q.at)
		require.NoError(t, err)
		require.True(t, ok)

		want, _ := features.NearestObservation(obs, q.lat, q.lon, q.at)
		assert.Equal(t, want, got)
	}
}

func TestNearest_TiesKeepFirstInserted(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertObservations(context.Background(), []domain.Observation{
		{Timestamp: t0, Lat: 1, Lon: 1, PM25: domain.Float(1)},
		{Timestamp: t0, Lat: 1, Lon: 1, PM25: domain.Float(2)},
	}))

	got, ok, err := s.Nearest(context.Background(), 1, 1, t0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, *got.PM25)
}

func TestNearest_EmptyTable(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Nearest(context.Background(), 4.7, -74.1, t0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRebuildFeatures(t *testing.T) {
	s := newTestStore(t)
	db := s.Handle()
	ctx := context.Background()
	ts := t0.Unix()

	_, err := db.ExecContext(ctx, `INSERT INTO stations (id, name, lat, lon) VALUES (1, 'Kennedy', 4.62, -74.16), (2, 'Usaquen', 4.71, -74.03)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO measurements (station_id, measured_at, pm25, pm10, no2) VALUES
		(1, ?, 21.5, NULL, NULL),
		(1, ?, NULL, 40, NULL),
		(1, ?, NULL, NULL, 12),
		(2, ?, 9, NULL, NULL)`, ts, ts, ts, ts)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO weather_observations (datetime_utc, lat, lon, temp, humidity, wind_speed, pressure)
		VALUES (?, 4.62, -74.16, 15.5, 81, 2.2, 752)`, ts)
	require.NoError(t, err)
	require.NoError(t, s.InsertObservations(ctx, []domain.Observation{{Timestamp: t0, Lat: 0, Lon: 0}}))

	n, err := s.RebuildFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := s.Fetch(ctx, domain.Query{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	kennedy := got[0]
	assert.Equal(t, 4.62, kennedy.Lat)
	assert.Equal(t, 21.5, *kennedy.PM25)
	assert.Equal(t, 12.0, *kennedy.NO2)
	assert.Nil(t, kennedy.O3)
	assert.Equal(t, 15.5, *kennedy.Temp)
	assert.Equal(t, 2.2, *kennedy.WindSpeed)
	assert.Equal(t, map[string]float64{"pm10": 40, "humidity": 81, "pressure": 752}, kennedy.OtherFeatures)

	usaquen := got[1]
	assert.Equal(t, 9.0, *usaquen.PM25)
	assert.Nil(t, usaquen.Temp, "no weather at this station")
	assert.Nil(t, usaquen.OtherFeatures)
}

func TestAppend_AddsTargetColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []domain.PredictionRecord{
		{Timestamp: t0, Lat: 4.7, Lon: -74.1, Target: "pm25", Value: 18.25, ModelVersion: "pm25-rf-aaaa0000"},
		{Timestamp: t0, Lat: 4.7, Lon: -74.1, Target: "no2", Value: 11, ModelVersion: "pm25+no2-rf-bbbb1111"},
	}
	require.NoError(t, s.Append(ctx, records))
	require.NoError(t, s.Append(ctx, records[:1]))

	var count int
	require.NoError(t, s.Handle().QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions WHERE pm25_pred IS NOT NULL`).Scan(&count))
	assert.Equal(t, 2, count)

	var no2 float64
	var version string
	require.NoError(t, s.Handle().QueryRowContext(ctx,
		`SELECT no2_pred, model_version FROM predictions WHERE no2_pred IS NOT NULL`).Scan(&no2, &version))
	assert.Equal(t, 11.0, no2)
	assert.Equal(t, "pm25+no2-rf-bbbb1111", version)
}

func TestAppend_RejectsUnsafeTarget(t *testing.T) {
	s := newTestStore(t)
	err := s.Append(context.Background(), []domain.PredictionRecord{{Target: `pm25"; DROP TABLE predictions; --`}})
	assert.ErrorIs(t, err, domain.ErrDataAccess)
}
