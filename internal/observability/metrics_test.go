package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersWithDefaultRegistry(t *testing.T) {
	m := NewMetrics()
	m.TrainingRuns.WithLabelValues("trained").Inc()
	m.ModelCache.WithLabelValues("hit").Add(2)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["aq_model_training_runs_total"])
	assert.True(t, names["aq_model_model_cache_total"])
}

func TestNewMetricsForTesting_IsIndependent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.Predictions.WithLabelValues("pm25", "success").Inc()
	a.ObservationsFetched.Add(12)

	assert.InDelta(t, 1.0, testutil.ToFloat64(a.Predictions.WithLabelValues("pm25", "success")), 1e-9)
	assert.InDelta(t, 0.0, testutil.ToFloat64(b.Predictions.WithLabelValues("pm25", "success")), 1e-9)
	assert.InDelta(t, 12.0, testutil.ToFloat64(a.ObservationsFetched), 1e-9)
}
