// Package scheduler retrains models on a fixed interval while the service runs.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/pipeline"
	"github.com/go-co-op/gocron"
)

// Runner performs one retraining run.
type Runner interface {
	RunOnce(ctx context.Context) (pipeline.Report, error)
}

// Scheduler triggers a Runner every interval. Runs never overlap. Stop
// cancels the context of a run in flight.
type Scheduler struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	runner    Runner
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a Scheduler. Each run is bounded by timeout; zero means the
// interval itself.
func New(runner Runner, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if timeout <= 0 {
		timeout = interval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
		runner:    runner,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start schedules the retraining job, running it once immediately, and
// starts the underlying scheduler.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 1
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(s.run)
	if err != nil {
		return err
	}

	s.logger.Info("retraining scheduled", "every_minutes", minutes)
	s.scheduler.StartAsync()
	return nil
}

// Stop cancels a run in flight, waits for it to return and cancels any
// future jobs.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	report, err := s.runner.RunOnce(ctx)
	if err != nil {
		s.logger.Error("scheduled retraining failed", "error", err)
		return
	}
	s.logger.Info("scheduled retraining completed", "trained", report.Trained(), "results", len(report.Results))
}
