package main

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/air-quality-model/internal/config"
)

func runBuildFeatures(ctx context.Context, cfg *config.Config, logger *slog.Logger, _ []string) int {
	store, closeStore, err := openFeatureStore(ctx, cfg, 1, logger)
	if err != nil {
		logger.Error("open feature store failed", "error", err)
		return exitFail
	}
	defer closeStore()

	if err := store.Migrate(ctx); err != nil {
		logger.Error("migrate failed", "error", err)
		return exitFail
	}
	rows, err := store.RebuildFeatures(ctx)
	if err != nil {
		logger.Error("rebuild features failed", "error", err)
		return exitFail
	}
	logger.Info("feature table rebuilt", "rows", rows, "driver", cfg.FeatureStoreDriver)
	return exitOK
}
