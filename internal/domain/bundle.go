package domain

import (
	"strings"
	"time"
)

// FeatureSchema is the ordered list of feature names a model was trained on.
type FeatureSchema []string

// Index returns the position of name in the schema, or -1.
func (s FeatureSchema) Index(name string) int {
	for i, n := range s {
		if n == name {
			return i
		}
	}
	return -1
}

// FeatureRow is a single model input laid out in schema order.
type FeatureRow struct {
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

// Get returns the value of the named feature.
func (r FeatureRow) Get(name string) (float64, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Values[i], true
		}
	}
	return 0, false
}

// Regressor is a fitted model mapping one feature row to one value per target.
type Regressor interface {
	Predict(row []float64) []float64
	NumFeatures() int
	NumOutputs() int
}

// Metrics holds held-out validation error for one target.
type Metrics struct {
	RMSE           float64 `json:"rmse"`
	R2             float64 `json:"r2"`
	TrainRows      int     `json:"train_rows"`
	ValidationRows int     `json:"validation_rows"`
}

// ModelBundle is the persisted pairing of a model with its feature schema.
// Bundles are immutable once saved; retraining produces a new one under the
// same key.
type ModelBundle struct {
	Model         Regressor
	FeatureSchema FeatureSchema
	Targets       []string
	Medians       map[string]float64
	Metrics       map[string]Metrics
	TrainedAt     time.Time
	Version       string
}

// Target returns the logical storage key of the bundle: the target name for
// single-output models, or the targets joined with "+" for multi-output ones.
func (b ModelBundle) Target() string {
	return TargetKey(b.Targets)
}

// MultiOutput reports whether the bundle predicts more than one target.
func (b ModelBundle) MultiOutput() bool {
	return len(b.Targets) > 1
}

// TargetKey joins target names into a bundle key.
func TargetKey(targets []string) string {
	return strings.Join(targets, "+")
}

// PredictionRecord is an append-only audit entry written for every
// successful prediction.
type PredictionRecord struct {
	Timestamp    time.Time `json:"datetime_utc"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	Target       string    `json:"target"`
	Value        float64   `json:"predicted_value"`
	ModelVersion string    `json:"model_version"`
}
