// Package synthetic generates plausible hourly feature-table rows for demos
// and local databases.
package synthetic

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
)

// Station is a fixed measurement site.
type Station struct {
	Name string
	Lat  float64
	Lon  float64
}

// DefaultStations are three sites around downtown Los Angeles.
var DefaultStations = []Station{
	{Name: "Station_A", Lat: 34.0522, Lon: -118.2437},
	{Name: "Station_B", Lat: 34.0736, Lon: -118.4004},
	{Name: "Station_C", Lat: 33.9850, Lon: -118.1200},
}

// Options controls generation. End is truncated to the hour.
type Options struct {
	End      time.Time
	Days     int
	Stations []Station
	Seed     uint64
}

// Generate returns one observation per station per hour over the last
// opts.Days days, oldest first. The same options always produce the same rows.
func Generate(opts Options) []domain.Observation {
	if opts.Days <= 0 {
		opts.Days = 7
	}
	if len(opts.Stations) == 0 {
		opts.Stations = DefaultStations
	}
	end := opts.End.UTC().Truncate(time.Hour)
	hours := opts.Days * 24
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))

	obs := make([]domain.Observation, 0, hours*len(opts.Stations))
	for h := hours - 1; h >= 0; h-- {
		ts := end.Add(-time.Duration(h) * time.Hour)
		for _, s := range opts.Stations {
			obs = append(obs, observe(rng, s, ts))
		}
	}
	return obs
}

// observe draws one reading. Pollutants respond to temperature and wind so
// trained models have signal to find.
func observe(rng *rand.Rand, s Station, ts time.Time) domain.Observation {
	hour := float64(ts.Hour())
	temp := 22 + 6*math.Sin(2*math.Pi*(hour-9)/24) + rng.NormFloat64()
	wind := rng.Float64() * 10
	no2 := math.Max(0, 30-2*wind+2*rng.NormFloat64())
	o3 := math.Max(0, 0.02+0.002*temp+0.005*rng.NormFloat64())
	pm25 := math.Max(0, 5+0.8*temp-1.2*wind+0.3*no2+2*rng.NormFloat64())

	return domain.Observation{
		Timestamp: ts,
		Lat:       s.Lat,
		Lon:       s.Lon,
		PM25:      domain.Float(round(pm25)),
		NO2:       domain.Float(round(no2)),
		O3:        domain.Float(math.Round(o3*1e4) / 1e4),
		Temp:      domain.Float(round(temp)),
		WindSpeed: domain.Float(round(wind)),
		OtherFeatures: map[string]float64{
			"pm10":     round(pm25*1.6 + 3*rng.Float64()),
			"humidity": round(30 + 40*rng.Float64()),
			"wind_dir": float64(rng.IntN(361)),
			"pressure": float64(1000 + rng.IntN(26)),
		},
	}
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
