// Package prediction answers point queries with a stored model bundle,
// backfilling schema features from the nearest observation.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/couchcryptid/air-quality-model/internal/features"
	"github.com/couchcryptid/air-quality-model/internal/observability"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// BundleLoader returns the latest bundle stored for a target.
type BundleLoader interface {
	Load(ctx context.Context, target string) (domain.ModelBundle, error)
}

// NearestFinder returns the observation closest to a query point. The
// boolean is false when the feature table is empty.
type NearestFinder interface {
	Nearest(ctx context.Context, lat, lon float64, at time.Time) (domain.Observation, bool, error)
}

// PredictionSink records served predictions.
type PredictionSink interface {
	Append(ctx context.Context, records []domain.PredictionRecord) error
}

// Request is a single point query. A zero At means now.
type Request struct {
	Target string   `validate:"required"`
	Lat    *float64 `validate:"required,gte=-90,lte=90"`
	Lon    *float64 `validate:"required,gte=-180,lte=180"`
	At     time.Time
}

// Prediction is the model output for one request.
type Prediction struct {
	Target       string             `json:"target"`
	Value        float64            `json:"value"`
	Values       map[string]float64 `json:"values"`
	Features     domain.FeatureRow  `json:"features"`
	Filled       []string           `json:"filled,omitempty"`
	ModelVersion string             `json:"model_version"`
	Lat          float64            `json:"lat"`
	Lon          float64            `json:"lon"`
	At           time.Time          `json:"datetime_utc"`
}

// Predictor serves predictions. The finder and sink are optional.
type Predictor struct {
	loader  BundleLoader
	finder  NearestFinder
	sink    PredictionSink
	policy  features.DefaultPolicy
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Predictor.
func New(loader BundleLoader, finder NearestFinder, sink PredictionSink, policy features.DefaultPolicy,
	logger *slog.Logger, metrics *observability.Metrics,
) *Predictor {
	if policy == "" {
		policy = features.DefaultMedian
	}
	return &Predictor{
		loader:  loader,
		finder:  finder,
		sink:    sink,
		policy:  policy,
		logger:  logger,
		metrics: metrics,
	}
}

// Predict loads the target's bundle, assembles a feature row in schema
// order and runs the model. A missing bundle is returned as
// *domain.ModelNotFoundError; features the lookup cannot supply are filled
// by the default policy and reported in Prediction.Filled.
func (p *Predictor) Predict(ctx context.Context, req Request) (Prediction, error) {
	if err := validate.Struct(req); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	at := req.At.UTC()
	if req.At.IsZero() {
		at = domain.Now()
	}
	lat, lon := *req.Lat, *req.Lon

	bundle, err := p.loader.Load(ctx, req.Target)
	if err != nil {
		p.countOutcome(req.Target, err)
		return Prediction{}, err
	}

	var nearest *domain.Observation
	if p.finder != nil && features.NeedsLookup(bundle.FeatureSchema) {
		o, ok, err := p.finder.Nearest(ctx, lat, lon, at)
		if err != nil {
			p.countOutcome(req.Target, err)
			return Prediction{}, fmt.Errorf("nearest observation: %w", err)
		}
		if ok {
			nearest = &o
		}
	}

	row, filled := features.BuildRow(bundle.FeatureSchema, bundle.Medians, p.policy, lat, lon, at, nearest)
	if len(filled) > 0 {
		p.logger.Warn("feature row filled with defaults",
			"error", &domain.SchemaMismatchError{Target: req.Target, Filled: filled},
			"target", req.Target,
			"policy", string(p.policy),
			"nearest_found", nearest != nil,
		)
		p.metrics.FilledFeatures.WithLabelValues(req.Target).Add(float64(len(filled)))
	}

	if w := bundle.Model.NumFeatures(); w != len(row.Values) {
		err := fmt.Errorf("model for %q expects %d features, row has %d", req.Target, w, len(row.Values))
		p.countOutcome(req.Target, err)
		return Prediction{}, err
	}
	out := bundle.Model.Predict(row.Values)
	if len(out) != len(bundle.Targets) {
		err := fmt.Errorf("model for %q returned %d outputs for %d targets", req.Target, len(out), len(bundle.Targets))
		p.countOutcome(req.Target, err)
		return Prediction{}, err
	}

	pred := Prediction{
		Target:       req.Target,
		Value:        out[0],
		Values:       make(map[string]float64, len(out)),
		Features:     row,
		Filled:       filled,
		ModelVersion: bundle.Version,
		Lat:          lat,
		Lon:          lon,
		At:           at,
	}
	records := make([]domain.PredictionRecord, len(out))
	for i, target := range bundle.Targets {
		pred.Values[target] = out[i]
		records[i] = domain.PredictionRecord{
			Timestamp:    at,
			Lat:          lat,
			Lon:          lon,
			Target:       target,
			Value:        out[i],
			ModelVersion: bundle.Version,
		}
	}
	p.metrics.Predictions.WithLabelValues(req.Target, "success").Inc()

	if p.sink != nil {
		if err := p.sink.Append(ctx, records); err != nil {
			p.logger.Warn("prediction log write failed", "target", req.Target, "error", err)
		}
	}
	return pred, nil
}

func (p *Predictor) countOutcome(target string, err error) {
	outcome := "error"
	if errors.Is(err, domain.ErrModelNotFound) {
		outcome = "not_found"
	}
	p.metrics.Predictions.WithLabelValues(target, outcome).Inc()
}
