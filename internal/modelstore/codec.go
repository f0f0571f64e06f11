package modelstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/couchcryptid/air-quality-model/internal/forest"
	"github.com/golang/snappy"
)

const (
	formatVersion = 1
	kindForest    = "random_forest"
)

// envelope is the serialized bundle.
type envelope struct {
	FormatVersion int                       `json:"format_version"`
	Kind          string                    `json:"kind"`
	Targets       []string                  `json:"targets"`
	FeatureSchema []string                  `json:"feature_schema"`
	Medians       map[string]float64        `json:"medians"`
	Metrics       map[string]domain.Metrics `json:"metrics,omitempty"`
	TrainedAt     time.Time                 `json:"trained_at"`
	Version       string                    `json:"version"`
	Model         *forest.Forest            `json:"model"`
}

// Encode serializes a bundle as snappy-compressed JSON. Only forest models
// are supported.
func Encode(b domain.ModelBundle) ([]byte, error) {
	f, ok := b.Model.(*forest.Forest)
	if !ok || f == nil {
		return nil, fmt.Errorf("encode bundle: unsupported model type %T", b.Model)
	}
	if len(b.Targets) == 0 {
		return nil, errors.New("encode bundle: no targets")
	}
	raw, err := json.Marshal(envelope{
		FormatVersion: formatVersion,
		Kind:          kindForest,
		Targets:       b.Targets,
		FeatureSchema: b.FeatureSchema,
		Medians:       b.Medians,
		Metrics:       b.Metrics,
		TrainedAt:     b.TrainedAt.UTC(),
		Version:       b.Version,
		Model:         f,
	})
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// Decode parses and validates a bundle produced by Encode.
func Decode(data []byte) (domain.ModelBundle, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return domain.ModelBundle{}, fmt.Errorf("decode bundle: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.ModelBundle{}, fmt.Errorf("decode bundle: %w", err)
	}

	switch {
	case env.FormatVersion != formatVersion:
		return domain.ModelBundle{}, fmt.Errorf("decode bundle: unsupported format version %d", env.FormatVersion)
	case env.Kind != kindForest:
		return domain.ModelBundle{}, fmt.Errorf("decode bundle: unsupported model kind %q", env.Kind)
	case env.Model == nil:
		return domain.ModelBundle{}, errors.New("decode bundle: missing model")
	}
	if err := env.Model.Validate(); err != nil {
		return domain.ModelBundle{}, fmt.Errorf("decode bundle: %w", err)
	}
	if env.Model.NumFeatures() != len(env.FeatureSchema) {
		return domain.ModelBundle{}, fmt.Errorf("decode bundle: model expects %d features, schema has %d",
			env.Model.NumFeatures(), len(env.FeatureSchema))
	}
	if env.Model.NumOutputs() != len(env.Targets) {
		return domain.ModelBundle{}, fmt.Errorf("decode bundle: model has %d outputs, bundle names %d targets",
			env.Model.NumOutputs(), len(env.Targets))
	}

	return domain.ModelBundle{
		Model:         env.Model,
		FeatureSchema: env.FeatureSchema,
		Targets:       env.Targets,
		Medians:       env.Medians,
		Metrics:       env.Metrics,
		TrainedAt:     env.TrainedAt,
		Version:       env.Version,
	}, nil
}
