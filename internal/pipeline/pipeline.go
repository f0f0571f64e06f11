// Package pipeline runs the fetch-prepare-train-save cycle over a sliding
// window of the feature table.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/couchcryptid/air-quality-model/internal/observability"
	"github.com/couchcryptid/air-quality-model/internal/training"
)

// DefaultWindowDays is the training window when none is configured.
const DefaultWindowDays = 180

// ObservationFetcher reads feature-table rows matching a query.
type ObservationFetcher interface {
	Fetch(ctx context.Context, q domain.Query) ([]domain.Observation, error)
}

// TargetTrainer trains and saves models for a list of targets.
type TargetTrainer interface {
	TrainTargets(ctx context.Context, obs []domain.Observation, targets []string) []training.Result
}

// Window bounds the observations a run trains on: the last Days days up to
// the clock's now, optionally inside BBox.
type Window struct {
	Days int
	BBox *domain.BoundingBox
}

// Query returns the feature-table query for a run ending at end.
func (w Window) Query(end time.Time) domain.Query {
	days := w.Days
	if days <= 0 {
		days = DefaultWindowDays
	}
	return domain.Query{
		TimeRange: &domain.TimeRange{Start: end.Add(-time.Duration(days) * 24 * time.Hour), End: end},
		BBox:      w.BBox,
	}
}

// Report summarizes one retraining run.
type Report struct {
	Window       domain.TimeRange
	Observations int
	Results      []training.Result
}

// Trained returns the number of results that produced a saved bundle.
func (r Report) Trained() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == training.StatusTrained {
			n++
		}
	}
	return n
}

// Retrainer fetches the training window and retrains every target.
type Retrainer struct {
	fetcher ObservationFetcher
	trainer TargetTrainer
	targets []string
	window  Window
	logger  *slog.Logger
	metrics *observability.Metrics

	mu    sync.Mutex // one run at a time
	ready atomic.Bool
}

// New creates a Retrainer for targets.
func New(f ObservationFetcher, t TargetTrainer, targets []string, window Window, logger *slog.Logger, metrics *observability.Metrics) *Retrainer {
	return &Retrainer{
		fetcher: f,
		trainer: t,
		targets: targets,
		window:  window,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once a run has saved at least one model.
func (r *Retrainer) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no training run has saved a model yet")
	}
	return nil
}

// RunOnce trains every target on the current window. Fetch failures are
// returned as-is and not retried; per-target outcomes are in the report.
func (r *Retrainer) RunOnce(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics.PipelineRunning.Set(1)
	defer r.metrics.PipelineRunning.Set(0)

	q := r.window.Query(domain.Now())
	report := Report{Window: *q.TimeRange}
	r.logger.Info("retraining started",
		"targets", r.targets,
		"start", q.TimeRange.Start,
		"end", q.TimeRange.End,
	)

	obs, err := r.fetcher.Fetch(ctx, q)
	if err != nil {
		r.logger.Error("fetch observations failed", "error", err)
		return report, err
	}
	report.Observations = len(obs)
	r.metrics.ObservationsFetched.Add(float64(len(obs)))
	if len(obs) == 0 {
		r.logger.Warn("no observations in training window")
	}

	report.Results = r.trainer.TrainTargets(ctx, obs, r.targets)
	for _, res := range report.Results {
		r.record(res)
	}
	if report.Trained() > 0 {
		r.ready.Store(true)
	}

	r.logger.Info("retraining finished",
		"observations", report.Observations,
		"trained", report.Trained(),
		"results", len(report.Results),
	)
	return report, nil
}

func (r *Retrainer) record(res training.Result) {
	r.metrics.TrainingRuns.WithLabelValues(string(res.Status)).Inc()
	if res.Status != training.StatusTrained {
		return
	}
	r.metrics.TrainingDuration.WithLabelValues(res.Target).Observe(res.Duration.Seconds())
	for target, m := range res.Metrics {
		r.metrics.ValidationRMSE.WithLabelValues(target).Set(m.RMSE)
		r.metrics.ValidationR2.WithLabelValues(target).Set(m.R2)
	}
}
