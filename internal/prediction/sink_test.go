package prediction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	"github.com/couchcryptid/air-quality-model/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSink struct {
	calls int
	err   error
}

func (c *countingSink) Append(context.Context, []domain.PredictionRecord) error {
	c.calls++
	return c.err
}

var oneRecord = []domain.PredictionRecord{{Timestamp: queryTime, Target: "pm25", Value: 12}}

func TestMultiSink_ContinuesPastFailures(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	bad := &countingSink{err: errors.New("redis down")}
	good := &mockSink{}
	multi := NewMultiSink(discardLogger(), metrics,
		NamedSink{Name: "redis", Sink: bad},
		NamedSink{Name: "sql", Sink: good},
	)

	err := multi.Append(context.Background(), oneRecord)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: redis down")
	assert.Len(t, good.records, 1)
	assert.Equal(t, 2, multi.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PredictionSinkErrors.WithLabelValues("redis")))
}

func TestMultiSink_Empty(t *testing.T) {
	multi := NewMultiSink(discardLogger(), observability.NewMetricsForTesting())
	assert.NoError(t, multi.Append(context.Background(), oneRecord))
}

func TestBreakerSink_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &countingSink{err: errors.New("broker unreachable")}
	sink := NewBreakerSink("kafka", inner, 2, time.Minute, discardLogger())

	assert.Error(t, sink.Append(context.Background(), oneRecord))
	assert.Error(t, sink.Append(context.Background(), oneRecord))
	assert.Equal(t, gobreaker.StateOpen, sink.State())

	err := sink.Append(context.Background(), oneRecord)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls)
}

func TestBreakerSink_PassesThroughSuccess(t *testing.T) {
	inner := &mockSink{}
	sink := NewBreakerSink("redis", inner, 0, time.Minute, discardLogger())

	require.NoError(t, sink.Append(context.Background(), oneRecord))
	assert.Len(t, inner.records, 1)
	assert.Equal(t, gobreaker.StateClosed, sink.State())
}
