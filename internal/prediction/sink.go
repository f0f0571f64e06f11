package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/couchcryptid/air-quality-model/internal/observability"
	"github.com/sony/gobreaker"
)

// NamedSink labels a sink for logs and metrics.
type NamedSink struct {
	Name string
	Sink PredictionSink
}

// MultiSink fans records out to every sink. One failing sink does not stop
// the others; the joined error reports all failures.
type MultiSink struct {
	sinks   []NamedSink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewMultiSink creates a fan-out sink.
func NewMultiSink(logger *slog.Logger, metrics *observability.Metrics, sinks ...NamedSink) *MultiSink {
	return &MultiSink{sinks: sinks, logger: logger, metrics: metrics}
}

// Len returns the number of configured sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }

func (m *MultiSink) Append(ctx context.Context, records []domain.PredictionRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.Append(ctx, records); err != nil {
			m.logger.Warn("prediction sink failed", "sink", s.Name, "records", len(records), "error", err)
			m.metrics.PredictionSinkErrors.WithLabelValues(s.Name).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// BreakerSink stops calling a remote sink after repeated failures and probes
// it again once the open timeout elapses.
type BreakerSink struct {
	inner PredictionSink
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerSink wraps inner with a circuit breaker that opens after
// consecutiveFailures failed appends.
func NewBreakerSink(name string, inner PredictionSink, consecutiveFailures uint32, openTimeout time.Duration, logger *slog.Logger) *BreakerSink {
	if consecutiveFailures == 0 {
		consecutiveFailures = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= consecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("prediction sink breaker state changed", "sink", name, "from", from.String(), "to", to.String())
		},
	})
	return &BreakerSink{inner: inner, cb: cb}
}

func (b *BreakerSink) Append(ctx context.Context, records []domain.PredictionRecord) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Append(ctx, records)
	})
	return err
}

// State reports the breaker state.
func (b *BreakerSink) State() gobreaker.State { return b.cb.State() }
