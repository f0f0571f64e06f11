// Package training fits random-forest regressors on prepared observations,
// validates them on a held-out split and persists the resulting bundles.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/couchcryptid/air-quality-model/internal/features"
	"github.com/couchcryptid/air-quality-model/internal/forest"
	"github.com/google/uuid"
)

// DefaultValidationFraction is the share of usable rows held out for scoring.
const DefaultValidationFraction = 0.2

// Mode selects one model per target or one shared multi-output model.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSingle, ModeMulti:
		return m, nil
	default:
		return "", fmt.Errorf("unknown training mode %q (want single or multi)", s)
	}
}

// ModelSaver persists a bundle under the target's logical key and returns
// the storage key.
type ModelSaver interface {
	Save(ctx context.Context, target string, bundle domain.ModelBundle) (string, error)
}

// Config holds the training hyper-parameters.
type Config struct {
	Mode               Mode
	ValidationFraction float64
	Forest             forest.Params
}

// DefaultConfig returns single-target training with a 20% validation split
// and the default forest.
func DefaultConfig() Config {
	return Config{
		Mode:               ModeSingle,
		ValidationFraction: DefaultValidationFraction,
		Forest:             forest.DefaultParams(),
	}
}

// Trainer turns observations into saved model bundles.
type Trainer struct {
	preparer *features.Preparer
	saver    ModelSaver
	cfg      Config
	logger   *slog.Logger
}

// NewTrainer creates a Trainer. The forest seed also drives the split.
func NewTrainer(p *features.Preparer, saver ModelSaver, cfg Config, logger *slog.Logger) *Trainer {
	if cfg.Mode == "" {
		cfg.Mode = ModeSingle
	}
	if cfg.ValidationFraction <= 0 || cfg.ValidationFraction >= 1 {
		cfg.ValidationFraction = DefaultValidationFraction
	}
	if cfg.Forest.NumTrees <= 0 {
		cfg.Forest = forest.DefaultParams()
	}
	return &Trainer{preparer: p, saver: saver, cfg: cfg, logger: logger}
}

// TrainTargets trains every target according to the configured mode: one
// result per target in single mode, one combined result in multi mode.
func (t *Trainer) TrainTargets(ctx context.Context, obs []domain.Observation, targets []string) []Result {
	if t.cfg.Mode == ModeMulti && len(targets) > 1 {
		return []Result{t.TrainMulti(ctx, obs, targets, t.cfg.ValidationFraction)}
	}
	results := make([]Result, 0, len(targets))
	for _, target := range targets {
		results = append(results, t.Train(ctx, obs, target, t.cfg.ValidationFraction))
	}
	return results
}

// Train fits and saves a single-output model for target.
func (t *Trainer) Train(ctx context.Context, obs []domain.Observation, target string, validationFraction float64) Result {
	return t.TrainMulti(ctx, obs, []string{target}, validationFraction)
}

// TrainMulti fits and saves one model predicting all targets jointly. Rows
// missing any of the targets are dropped before the split.
func (t *Trainer) TrainMulti(ctx context.Context, obs []domain.Observation, targets []string, validationFraction float64) Result {
	start := time.Now()
	key := domain.TargetKey(targets)
	if validationFraction <= 0 || validationFraction >= 1 {
		validationFraction = t.cfg.ValidationFraction
	}

	prepared, err := t.preparer.PrepareMulti(obs, targets)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			t.logger.Warn("training skipped", "target", key, "reason", err)
			return skipped(key, err)
		}
		t.logger.Error("prepare features failed", "target", key, "error", err)
		return failed(key, fmt.Errorf("prepare %s: %w", key, err))
	}
	if err := ctx.Err(); err != nil {
		return failed(key, err)
	}

	trainIdx, valIdx := splitIndices(prepared.Rows(), validationFraction, t.cfg.Forest.Seed)
	xTrain, yTrain := rows(prepared.X, trainIdx), rows(prepared.Y, trainIdx)
	xVal, yVal := rows(prepared.X, valIdx), rows(prepared.Y, valIdx)

	model, err := forest.FitContext(ctx, xTrain, yTrain, t.cfg.Forest)
	if err != nil {
		t.logger.Error("fit model failed", "target", key, "error", err)
		return failed(key, fmt.Errorf("fit %s: %w", key, err))
	}
	metrics := evaluate(model.PredictMatrix(xVal), yVal, prepared.Targets, len(trainIdx))

	bundle := domain.ModelBundle{
		Model:         model,
		FeatureSchema: prepared.Schema,
		Targets:       prepared.Targets,
		Medians:       prepared.Medians,
		Metrics:       metrics,
		TrainedAt:     domain.Now(),
		Version:       fmt.Sprintf("%s-rf-%s", key, uuid.NewString()[:8]),
	}

	storageKey, err := t.saver.Save(ctx, key, bundle)
	if err != nil {
		t.logger.Error("save model failed", "target", key, "error", err)
		return failed(key, fmt.Errorf("save %s: %w", key, err))
	}

	elapsed := time.Since(start)
	for _, target := range prepared.Targets {
		m := metrics[target]
		t.logger.Info("model trained",
			"target", target,
			"features", []string(prepared.Schema),
			"train_rows", m.TrainRows,
			"validation_rows", m.ValidationRows,
			"rmse", m.RMSE,
			"r2", m.R2,
			"key", storageKey,
		)
	}

	return Result{
		Status:     StatusTrained,
		Target:     key,
		Bundle:     &bundle,
		StorageKey: storageKey,
		Metrics:    metrics,
		Duration:   elapsed,
	}
}
