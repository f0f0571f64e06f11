package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/config"
	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/couchcryptid/air-quality-model/internal/observability"
	"github.com/couchcryptid/air-quality-model/internal/prediction"
)

// datetimeLayouts are tried in order; layouts without a zone mean UTC.
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func runPredict(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	target := fs.String("target", "", "target to predict, e.g. pm25 or pm25+no2")
	lat := fs.String("lat", "", "latitude in degrees")
	lon := fs.String("lon", "", "longitude in degrees")
	datetime := fs.String("datetime", "", "ISO 8601 time of the prediction (default now, UTC)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	req, err := buildPredictRequest(*target, *lat, *lon, *datetime)
	if err != nil {
		logger.Error("invalid prediction request", "error", err)
		return exitFail
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
	sink, closeSinks := buildSinks(ctx, cfg, store, metrics, logger)
	defer closeSinks()

	predictor := prediction.New(repo, store, sink, cfg.DefaultPolicy, logger, metrics)
	pred, err := predictor.Predict(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrModelNotFound) {
			logger.Error("no trained model; run `aqmodel train` first", "target", req.Target, "error", err)
		} else {
			logger.Error("prediction failed", "target", req.Target, "error", err)
		}
		return exitFail
	}

	if err := json.NewEncoder(os.Stdout).Encode(pred); err != nil {
		logger.Error("write prediction failed", "error", err)
		return exitFail
	}
	return exitOK
}

// buildPredictRequest leaves missing coordinates nil so request validation
// reports them.
func buildPredictRequest(target, lat, lon, datetime string) (prediction.Request, error) {
	req := prediction.Request{Target: target}
	if lat != "" {
		v, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			return req, fmt.Errorf("%w: lat %q is not a number", domain.ErrInvalidRequest, lat)
		}
		req.Lat = &v
	}
	if lon != "" {
		v, err := strconv.ParseFloat(lon, 64)
		if err != nil {
			return req, fmt.Errorf("%w: lon %q is not a number", domain.ErrInvalidRequest, lon)
		}
		req.Lon = &v
	}
	if datetime != "" {
		at, err := parseDatetime(datetime)
		if err != nil {
			return req, err
		}
		req.At = at
	}
	if req.Lat == nil || req.Lon == nil {
		return req, fmt.Errorf("%w: -lat and -lon are required", domain.ErrInvalidRequest)
	}
	return req, nil
}

func parseDatetime(s string) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: datetime %q is not ISO 8601", domain.ErrInvalidRequest, s)
}
