package features

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleObservations() []domain.Observation {
	return []domain.Observation{
		{Timestamp: baseTime, Lat: 4.60, Lon: -74.08, PM25: domain.Float(10)},
		{Timestamp: baseTime.Add(3 * time.Hour), Lat: 4.71, Lon: -74.07, PM25: domain.Float(20)},
		{Timestamp: baseTime.Add(6 * time.Hour), Lat: 6.25, Lon: -75.56, PM25: domain.Float(30)},
	}
}

func TestNearestObservation_ExactMatch(t *testing.T) {
	obs := sampleObservations()
	for _, want := range obs {
		got, ok := NearestObservation(obs, want.Lat, want.Lon, want.Timestamp)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestNearestObservation_TimeTermBreaksSpatialTie(t *testing.T) {
	obs := []domain.Observation{
		{Timestamp: baseTime, Lat: 1, Lon: 1, PM25: domain.Float(1)},
		{Timestamp: baseTime.Add(time.Hour), Lat: 1, Lon: 1, PM25: domain.Float(2)},
	}
	got, ok := NearestObservation(obs, 1, 1, baseTime.Add(50*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 2.0, *got.PM25)
}

func TestNearestObservation_TiesKeepFirst(t *testing.T) {
	obs := []domain.Observation{
		{Timestamp: baseTime, Lat: 1, Lon: 1, PM25: domain.Float(1)},
		{Timestamp: baseTime, Lat: 1, Lon: 1, PM25: domain.Float(2)},
	}
	got, ok := NearestObservation(obs, 1, 1, baseTime)
	require.True(t, ok)
	assert.Equal(t, 1.0, *got.PM25)
}

func TestNearestObservation_Empty(t *testing.T) {
	_, ok := NearestObservation(nil, 0, 0, baseTime)
	assert.False(t, ok)
}

func TestSnapshot_Nearest(t *testing.T) {
	s := NewSnapshot(sampleObservations())
	got, ok, err := s.Nearest(context.Background(), 6.2, -75.5, baseTime.Add(6*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30.0, *got.PM25)
}
