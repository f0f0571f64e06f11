package prediction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/couchcryptid/air-quality-model/internal/features"
	"github.com/couchcryptid/air-quality-model/internal/observability"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockLoader struct {
	bundles map[string]domain.ModelBundle
	calls   int
}

func (m *mockLoader) Load(_ context.Context, target string) (domain.ModelBundle, error) {
	m.calls++
	b, ok := m.bundles[target]
	if !ok {
		return domain.ModelBundle{}, &domain.ModelNotFoundError{Target: target, Key: target + "_rf.json.sz"}
	}
	return b, nil
}

type mockFinder struct {
	obs   domain.Observation
	found bool
	err   error
	calls int
	gotAt time.Time
}

func (m *mockFinder) Nearest(_ context.Context, _, _ float64, at time.Time) (domain.Observation, bool, error) {
	m.calls++
	m.gotAt = at
	return m.obs, m.found, m.err
}

type mockSink struct {
	records []domain.PredictionRecord
	err     error
}

func (m *mockSink) Append(_ context.Context, records []domain.PredictionRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, records...)
	return nil
}

// recordingModel returns fixed outputs and remembers the last input row.
type recordingModel struct {
	features int
	out      []float64
	got      []float64
}

func (m *recordingModel) Predict(row []float64) []float64 {
	m.got = append([]float64(nil), row...)
	return append([]float64(nil), m.out...)
}
func (m *recordingModel) NumFeatures() int { return m.features }
func (m *recordingModel) NumOutputs() int  { return len(m.out) }

// --- helpers ---

var queryTime = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pm25Bundle(model *recordingModel) domain.ModelBundle {
	return domain.ModelBundle{
		Model:         model,
		FeatureSchema: domain.FeatureSchema{"temp", "wind_speed", "no2", "lat", "lon", "hour_of_day"},
		Targets:       []string{"pm25"},
		Medians:       map[string]float64{"temp": 18, "wind_speed": 2.5, "no2": 9},
		Version:       "pm25-rf-0badcafe",
	}
}

func bogota(target string) Request {
	return Request{Target: target, Lat: domain.Float(4.71), Lon: domain.Float(-74.07), At: queryTime}
}

// --- tests ---

func TestPredict_ModelNotFound(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	sink := &mockSink{}
	p := New(&mockLoader{}, &mockFinder{}, sink, features.DefaultMedian, discardLogger(), metrics)

	_, err := p.Predict(context.Background(), bogota("o3"))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelNotFound)
	var mnf *domain.ModelNotFoundError
	require.ErrorAs(t, err, &mnf)
	assert.Equal(t, "o3", mnf.Target)
	assert.Empty(t, sink.records)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Predictions.WithLabelValues("o3", "not_found")))
}

func TestPredict_AssemblesRowInSchemaOrder(t *testing.T) {
	model := &recordingModel{features: 6, out: []float64{27.5}}
	loader := &mockLoader{bundles: map[string]domain.ModelBundle{"pm25": pm25Bundle(model)}}
	finder := &mockFinder{found: true, obs: domain.Observation{Temp: domain.Float(21), NO2: domain.Float(14)}}
	sink := &mockSink{}
	metrics := observability.NewMetricsForTesting()
	p := New(loader, finder, sink, features.DefaultMedian, discardLogger(), metrics)

	pred, err := p.Predict(context.Background(), bogota("pm25"))
	require.NoError(t, err)

	assert.Equal(t, 27.5, pred.Value)
	assert.Equal(t, map[string]float64{"pm25": 27.5}, pred.Values)
	assert.Equal(t, "pm25-rf-0badcafe", pred.ModelVersion)
	assert.Equal(t, []string{"wind_speed"}, pred.Filled)

	wantRow := []float64{21, 2.5, 14, 4.71, -74.07, 12}
	if diff := cmp.Diff(wantRow, model.got); diff != "" {
		t.Errorf("model input mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string(pm25Bundle(model).FeatureSchema), pred.Features.Names)

	require.Len(t, sink.records, 1)
	assert.Equal(t, domain.PredictionRecord{
		Timestamp:    queryTime,
		Lat:          4.71,
		Lon:          -74.07,
		Target:       "pm25",
		Value:        27.5,
		ModelVersion: "pm25-rf-0badcafe",
	}, sink.records[0])

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Predictions.WithLabelValues("pm25", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FilledFeatures.WithLabelValues("pm25")))
}

func TestPredict_NoNearestFillsEveryLookupFeature(t *testing.T) {
	model := &recordingModel{features: 6, out: []float64{1}}
	loader := &mockLoader{bundles: map[string]domain.ModelBundle{"pm25": pm25Bundle(model)}}
	p := New(loader, &mockFinder{found: false}, nil, features.DefaultZero, discardLogger(), observability.NewMetricsForTesting())

	pred, err := p.Predict(context.Background(), bogota("pm25"))
	require.NoError(t, err)

	assert.Equal(t, []string{"temp", "wind_speed", "no2"}, pred.Filled)
	assert.Equal(t, []float64{0, 0, 0, 4.71, -74.07, 12}, model.got)
}

func TestPredict_FallbackSchemaSkipsLookup(t *testing.T) {
	model := &recordingModel{features: 3, out: []float64{5}}
	bundle := domain.ModelBundle{Model: model, FeatureSchema: features.FallbackSchema, Targets: []string{"pm25"}}
	finder := &mockFinder{}
	p := New(&mockLoader{bundles: map[string]domain.ModelBundle{"pm25": bundle}}, finder, nil,
		features.DefaultMedian, discardLogger(), observability.NewMetricsForTesting())

	pred, err := p.Predict(context.Background(), bogota("pm25"))
	require.NoError(t, err)
	assert.Zero(t, finder.calls)
	assert.Empty(t, pred.Filled)
	assert.Equal(t, []float64{4.71, -74.07, 12}, model.got)
}

func TestPredict_FinderErrorPropagates(t *testing.T) {
	model := &recordingModel{features: 6, out: []float64{1}}
	loader := &mockLoader{bundles: map[string]domain.ModelBundle{"pm25": pm25Bundle(model)}}
	finder := &mockFinder{err: domain.NewDataAccessError("nearest observation", errors.New("connection reset"))}
	p := New(loader, finder, nil, features.DefaultMedian, discardLogger(), observability.NewMetricsForTesting())

	_, err := p.Predict(context.Background(), bogota("pm25"))
	assert.ErrorIs(t, err, domain.ErrDataAccess)
	assert.Nil(t, model.got)
}

func TestPredict_InvalidRequests(t *testing.T) {
	cases := map[string]Request{
		"missing target": {Lat: domain.Float(1), Lon: domain.Float(1)},
		"missing lat":    {Target: "pm25", Lon: domain.Float(1)},
		"missing lon":    {Target: "pm25", Lat: domain.Float(1)},
		"lat range":      {Target: "pm25", Lat: domain.Float(91), Lon: domain.Float(1)},
		"lon range":      {Target: "pm25", Lat: domain.Float(1), Lon: domain.Float(-180.5)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			loader := &mockLoader{}
			p := New(loader, nil, nil, features.DefaultMedian, discardLogger(), observability.NewMetricsForTesting())

			_, err := p.Predict(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
			assert.Zero(t, loader.calls)
		})
	}
}

func TestPredict_ZeroCoordinatesAreValid(t *testing.T) {
	model := &recordingModel{features: 3, out: []float64{5}}
	bundle := domain.ModelBundle{Model: model, FeatureSchema: features.FallbackSchema, Targets: []string{"pm25"}}
	p := New(&mockLoader{bundles: map[string]domain.ModelBundle{"pm25": bundle}}, nil, nil,
		features.DefaultMedian, discardLogger(), observability.NewMetricsForTesting())

	_, err := p.Predict(context.Background(), Request{Target: "pm25", Lat: domain.Float(0), Lon: domain.Float(0), At: queryTime})
	assert.NoError(t, err)
}

func TestPredict_SinkErrorIsSwallowed(t *testing.T) {
	model := &recordingModel{features: 6, out: []float64{3}}
	loader := &mockLoader{bundles: map[string]domain.ModelBundle{"pm25": pm25Bundle(model)}}
	sink := &mockSink{err: errors.New("table locked")}
	p := New(loader, &mockFinder{}, sink, features.DefaultMedian, discardLogger(), observability.NewMetricsForTesting())

	pred, err := p.Predict(context.Background(), bogota("pm25"))
	require.NoError(t, err)
	assert.Equal(t, 3.0, pred.Value)
}

func TestPredict_MultiOutputBundle(t *testing.T) {
	model := &recordingModel{features: 3, out: []float64{22, 31}}
	bundle := domain.ModelBundle{
		Model:         model,
		FeatureSchema: features.FallbackSchema,
		Targets:       []string{"pm25", "no2"},
		Version:       "pm25+no2-rf-12345678",
	}
	sink := &mockSink{}
	p := New(&mockLoader{bundles: map[string]domain.ModelBundle{"pm25+no2": bundle}}, nil, sink,
		features.DefaultMedian, discardLogger(), observability.NewMetricsForTesting())

	pred, err := p.Predict(context.Background(), bogota("pm25+no2"))
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"pm25": 22, "no2": 31}, pred.Values)
	assert.Equal(t, 22.0, pred.Value)
	require.Len(t, sink.records, 2)
	assert.Equal(t, "no2", sink.records[1].Target)
	assert.Equal(t, 31.0, sink.records[1].Value)
}

func TestPredict_DefaultsToClockNow(t *testing.T) {
	now := time.Date(2025, time.July, 4, 9, 30, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })

	model := &recordingModel{features: 6, out: []float64{1}}
	loader := &mockLoader{bundles: map[string]domain.ModelBundle{"pm25": pm25Bundle(model)}}
	finder := &mockFinder{}
	p := New(loader, finder, nil, features.DefaultMedian, discardLogger(), observability.NewMetricsForTesting())

	req := bogota("pm25")
	req.At = time.Time{}
	pred, err := p.Predict(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, now, pred.At)
	assert.Equal(t, now, finder.gotAt)
	assert.Equal(t, 9.0, model.got[5])
}

func TestPredict_RejectsWidthMismatch(t *testing.T) {
	model := &recordingModel{features: 4, out: []float64{1}}
	loader := &mockLoader{bundles: map[string]domain.ModelBundle{"pm25": pm25Bundle(model)}}
	p := New(loader, &mockFinder{}, nil, features.DefaultMedian, discardLogger(), observability.NewMetricsForTesting())

	_, err := p.Predict(context.Background(), bogota("pm25"))
	assert.Error(t, err)
}
