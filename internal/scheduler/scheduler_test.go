package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	calls    atomic.Int32
	err      error
	deadline atomic.Bool
}

func (m *mockRunner) RunOnce(ctx context.Context) (pipeline.Report, error) {
	m.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		m.deadline.Store(true)
	}
	return pipeline.Report{}, m.err
}

// blockingRunner holds every run until its context ends.
type blockingRunner struct {
	once    sync.Once
	started chan struct{}
	err     atomic.Value
}

func (b *blockingRunner) RunOnce(ctx context.Context) (pipeline.Report, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	b.err.Store(ctx.Err())
	return pipeline.Report{}, ctx.Err()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunsImmediatelyOnStart(t *testing.T) {
	runner := &mockRunner{}
	s := New(runner, time.Hour, 0, discardLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return runner.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, runner.deadline.Load(), "each run must be bounded")
}

func TestScheduler_RunErrorDoesNotPanic(t *testing.T) {
	runner := &mockRunner{err: errors.New("fetch failed")}
	s := New(runner, 30*time.Second, time.Second, discardLogger())

	s.run()
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.Equal(t, time.Second, s.timeout)
}

func TestScheduler_StopCancelsRunInFlight(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{})}
	s := New(runner, 24*time.Hour, 0, discardLogger())
	require.NoError(t, s.Start())

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked behind the running job")
	}
	assert.Eventually(t, func() bool {
		err, _ := runner.err.Load().(error)
		return errors.Is(err, context.Canceled)
	}, time.Second, 10*time.Millisecond, "run sees the cancellation")
}
