package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/couchcryptid/air-quality-model/internal/adapter/httpadapter"
	"github.com/couchcryptid/air-quality-model/internal/config"
	"github.com/couchcryptid/air-quality-model/internal/features"
	"github.com/couchcryptid/air-quality-model/internal/observability"
	"github.com/couchcryptid/air-quality-model/internal/pipeline"
	"github.com/couchcryptid/air-quality-model/internal/prediction"
	"github.com/couchcryptid/air-quality-model/internal/scheduler"
	"github.com/couchcryptid/air-quality-model/internal/training"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// readiness is ready when every check passes.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, _ []string) int {
	store, closeStore, err := openFeatureStore(ctx, cfg, 8, logger)
	if err != nil {
		logger.Error("open feature store failed", "error", err)
		return exitFail
	}
	defer closeStore()
	if err := store.Migrate(ctx); err != nil {
		logger.Error("migrate failed", "error", err)
		return exitFail
	}

	metrics := observability.NewMetrics()
	repo, err := openModelRepository(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Error("open model store failed", "error", err)
		return exitFail
	}
	sink, closeSinks := buildSinks(ctx, cfg, store, metrics, logger)
	defer closeSinks()
	logger.Info("prediction sinks configured", "count", sink.Len())

	trainer := training.NewTrainer(
		features.NewPreparer(cfg.FeatureAllowList, cfg.MinRows),
		repo,
		training.Config{Mode: cfg.TrainingMode, ValidationFraction: cfg.ValidationFraction, Forest: cfg.Forest},
		logger,
	)
	retrainer := pipeline.New(store, trainer, cfg.Targets,
		pipeline.Window{Days: cfg.TrainingDays, BBox: cfg.TrainingBBox}, logger, metrics)
	sched := scheduler.New(retrainer, cfg.RetrainInterval, 0, logger)

	predictor := prediction.New(repo, store, sink, cfg.DefaultPolicy, logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, readiness{store, retrainer}, predictor, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start scheduled retraining.
	if err := sched.Start(); err != nil {
		logger.Error("scheduler start failed", "error", err)
		return exitFail
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return exitOK
}
