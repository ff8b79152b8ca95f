package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elonfeng/trendpulse/pkg/trend"
)

type fakeRunner struct {
	ingests  atomic.Int32
	cleanups atomic.Int32

	started chan struct{}
	release chan struct{}
}

func (r *fakeRunner) IngestAll(context.Context) (trend.IngestStats, error) {
	r.ingests.Add(1)
	if r.started != nil {
		r.started <- struct{}{}
		<-r.release
	}
	return trend.IngestStats{}, nil
}

func (r *fakeRunner) Cleanup(context.Context) error {
	r.cleanups.Add(1)
	return nil
}

func TestTriggerFetchRunsCleanupThenIngest(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, "", "", zap.NewNop())

	ok := s.TriggerFetch(context.Background())

	assert.True(t, ok)
	assert.EqualValues(t, 1, runner.ingests.Load())
	assert.EqualValues(t, 1, runner.cleanups.Load())
}

func TestConcurrentTriggerDropped(t *testing.T) {
	runner := &fakeRunner{
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	s := New(runner, "", "", zap.NewNop())

	require.True(t, s.TriggerAsync(context.Background()))
	<-runner.started

	assert.False(t, s.TriggerFetch(context.Background()), "overlapping trigger must be dropped")
	assert.False(t, s.TriggerAsync(context.Background()))
	assert.True(t, s.Status().IsRunning)

	close(runner.release)

	require.Eventually(t, func() bool {
		return !s.Status().IsRunning
	}, time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, runner.ingests.Load())

	assert.True(t, s.TriggerFetch(context.Background()), "guard must reset after the cycle")
	assert.EqualValues(t, 2, runner.ingests.Load())
}

func TestStatusLastRun(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, "", "", zap.NewNop())

	assert.Nil(t, s.Status().LastRun)

	s.TriggerFetch(context.Background())

	st := s.Status()
	require.NotNil(t, st.LastRun)
	assert.WithinDuration(t, time.Now().UTC(), *st.LastRun, time.Minute)
	assert.Nil(t, st.NextRun, "next run is unknown until the cron loop starts")
}

func TestDefaultSpecs(t *testing.T) {
	s := New(&fakeRunner{}, "", "", zap.NewNop())
	assert.Equal(t, "*/30 * * * *", s.fetchSpec)
	assert.Equal(t, "0 2 * * *", s.cleanupSpec)

	s = New(&fakeRunner{}, "*/5 * * * *", "0 3 * * *", zap.NewNop())
	assert.Equal(t, "*/5 * * * *", s.fetchSpec)
	assert.Equal(t, "0 3 * * *", s.cleanupSpec)
}
