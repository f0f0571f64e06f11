package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/air-quality-model/internal/config"
	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/couchcryptid/air-quality-model/internal/features"
	"github.com/couchcryptid/air-quality-model/internal/observability"
	"github.com/couchcryptid/air-quality-model/internal/pipeline"
	"github.com/couchcryptid/air-quality-model/internal/training"
)

// trainSummary is the JSON line printed per training result.
type trainSummary struct {
	Target     string                    `json:"target"`
	Status     training.Status           `json:"status"`
	Reason     string                    `json:"reason,omitempty"`
	Version    string                    `json:"version,omitempty"`
	StorageKey string                    `json:"storage_key,omitempty"`
	Schema     domain.FeatureSchema      `json:"feature_schema,omitempty"`
	Metrics    map[string]domain.Metrics `json:"metrics,omitempty"`
}

func runTrain(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	targets := fs.String("target", strings.Join(cfg.Targets, ","), "comma-separated targets to train")
	multi := fs.Bool("multi", cfg.TrainingMode == training.ModeMulti, "train one multi-output model for all targets")
	days := fs.Int("days", cfg.TrainingDays, "training window in days, ending now")
	bbox := fs.String("bbox", "", "bounding box latMin,latMax,lonMin,lonMax (default TRAINING_BBOX)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	targetList := config.SplitList(*targets)
	if len(targetList) == 0 {
		logger.Error("at least one -target is required")
		return exitUsage
	}
	box := cfg.TrainingBBox
	if *bbox != "" {
		b, err := config.ParseBBox(*bbox)
		if err != nil {
			logger.Error("invalid -bbox", "error", err)
			return exitUsage
		}
		box = b
	}
	mode := training.ModeSingle
	if *multi {
		mode = training.ModeMulti
	}

	store, closeStore, err := openFeatureStore(ctx, cfg, 1, logger)
	if err != nil {
		logger.Error("open feature store failed", "error", err)
		return exitFail
	}
	defer closeStore()

	metrics := observability.NewMetrics()
	repo, err := openModelRepository(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Error("open model store failed", "error", err)
		return exitFail
	}

	trainer := training.NewTrainer(
		features.NewPreparer(cfg.FeatureAllowList, cfg.MinRows),
		repo,
		training.Config{Mode: mode, ValidationFraction: cfg.ValidationFraction, Forest: cfg.Forest},
		logger,
	)
	retrainer := pipeline.New(store, trainer, targetList, pipeline.Window{Days: *days, BBox: box}, logger, metrics)

	report, err := retrainer.RunOnce(ctx)
	if err != nil {
		logger.Error("training failed", "error", err)
		return exitFail
	}
	if err := printSummaries(os.Stdout, report.Results); err != nil {
		logger.Error("write summary failed", "error", err)
		return exitFail
	}
	if report.Trained() < len(report.Results) || len(report.Results) == 0 {
		return exitFail
	}
	return exitOK
}

func printSummaries(w io.Writer, results []training.Result) error {
	enc := json.NewEncoder(w)
	for _, r := range results {
		s := trainSummary{
			Target:     r.Target,
			Status:     r.Status,
			Reason:     r.Reason,
			StorageKey: r.StorageKey,
			Metrics:    r.Metrics,
		}
		if r.Bundle != nil {
			s.Version = r.Bundle.Version
			s.Schema = r.Bundle.FeatureSchema
		}
		if err := enc.Encode(s); err != nil {
			return err
		}
	}
	return nil
}
