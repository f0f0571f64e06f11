package features

import (
	"context"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
)

// NearestObservation returns the observation minimizing the combined
// spatio-temporal distance to the query point. Ties keep the earliest
// observation in slice order. The boolean is false for an empty slice.
func NearestObservation(obs []domain.Observation, lat, lon float64, at time.Time) (domain.Observation, bool) {
	best := -1
	bestDist := 0.0
	for i := range obs {
		d := obs[i].Distance(lat, lon, at)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return domain.Observation{}, false
	}
	return obs[best], true
}

// Snapshot answers nearest-observation lookups from an in-memory slice, for
// batch runs that already fetched the feature table.
type Snapshot struct {
	obs []domain.Observation
}

// NewSnapshot wraps obs; the slice order decides ties.
func NewSnapshot(obs []domain.Observation) *Snapshot {
	return &Snapshot{obs: obs}
}

// Nearest implements the predictor's lookup over the snapshot.
func (s *Snapshot) Nearest(_ context.Context, lat, lon float64, at time.Time) (domain.Observation, bool, error) {
	o, ok := NearestObservation(s.obs, lat, lon, at)
	return o, ok, nil
}
