package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/adapter/kafka"
	"github.com/couchcryptid/air-quality-model/internal/adapter/postgres"
	redisadapter "github.com/couchcryptid/air-quality-model/internal/adapter/redis"
	"github.com/couchcryptid/air-quality-model/internal/adapter/sqlite"
	"github.com/couchcryptid/air-quality-model/internal/config"
	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/couchcryptid/air-quality-model/internal/modelstore"
	"github.com/couchcryptid/air-quality-model/internal/observability"
	"github.com/couchcryptid/air-quality-model/internal/prediction"
	"github.com/couchcryptid/storm-data-shared/retry"
)

// featureStore is what the commands need from either database adapter.
type featureStore interface {
	Migrate(ctx context.Context) error
	Fetch(ctx context.Context, q domain.Query) ([]domain.Observation, error)
	Nearest(ctx context.Context, lat, lon float64, at time.Time) (domain.Observation, bool, error)
	RebuildFeatures(ctx context.Context) (int64, error)
	Append(ctx context.Context, records []domain.PredictionRecord) error
	CheckReadiness(ctx context.Context) error
}

// openFeatureStore connects to the configured database, retrying with
// backoff until attempts are exhausted or ctx ends.
func openFeatureStore(ctx context.Context, cfg *config.Config, attempts int, logger *slog.Logger) (featureStore, func(), error) {
	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		store, closeFn, err := dialFeatureStore(ctx, cfg, logger)
		if err == nil {
			return store, closeFn, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		logger.Warn("feature store unavailable, retrying",
			"driver", cfg.FeatureStoreDriver, "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return nil, nil, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return nil, nil, lastErr
}

func dialFeatureStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (featureStore, func(), error) {
	switch cfg.FeatureStoreDriver {
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.FeatureStoreDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.FeatureStoreDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Error("sqlite close error", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown feature store driver %q", cfg.FeatureStoreDriver)
	}
}

// openModelRepository builds the cached bundle repository over the
// configured backend.
func openModelRepository(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (*modelstore.Cached, error) {
	var backend modelstore.Backend
	switch cfg.ModelStore {
	case config.ModelStoreS3:
		b, err := modelstore.NewS3Backend(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		backend = b
		logger.Info("model store: s3", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
	default:
		b, err := modelstore.NewDirBackend(cfg.ModelDir)
		if err != nil {
			return nil, err
		}
		backend = b
		logger.Info("model store: directory", "dir", cfg.ModelDir)
	}
	return modelstore.NewCached(modelstore.New(backend, logger), cfg.ModelCacheSize, metrics), nil
}

// buildSinks assembles the prediction log and any remote sinks. Remote
// sinks sit behind a circuit breaker. The returned cleanup closes them.
func buildSinks(ctx context.Context, cfg *config.Config, store featureStore, metrics *observability.Metrics, logger *slog.Logger) (*prediction.MultiSink, func()) {
	var sinks []prediction.NamedSink
	var closers []func() error

	if cfg.PredictionLogEnabled {
		sinks = append(sinks, prediction.NamedSink{Name: "prediction_log", Sink: store})
	}
	if cfg.RedisURL != "" {
		client, err := redisadapter.Dial(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis sink disabled", "error", err)
		} else {
			pub := redisadapter.NewPublisher(client, cfg.RedisChannel)
			sinks = append(sinks, prediction.NamedSink{
				Name: "redis",
				Sink: prediction.NewBreakerSink("redis", pub, cfg.SinkBreakerFailures, cfg.SinkBreakerTimeout, logger),
			})
			closers = append(closers, client.Close)
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		w := kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaPredictionsTopic, logger)
		sinks = append(sinks, prediction.NamedSink{
			Name: "kafka",
			Sink: prediction.NewBreakerSink("kafka", w, cfg.SinkBreakerFailures, cfg.SinkBreakerTimeout, logger),
		})
		closers = append(closers, w.Close)
	}

	cleanup := func() {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		if err := errors.Join(errs...); err != nil {
			logger.Error("prediction sink close error", "error", err)
		}
	}
	return prediction.NewMultiSink(logger, metrics, sinks...), cleanup
}
