package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	suberrors "github.com/Ramsey-B/subdivisions/pkg/errors"
	"github.com/Ramsey-B/subdivisions/pkg/logging"
	"github.com/Ramsey-B/subdivisions/pkg/reconcile"
)

type countingRunner struct {
	mu    sync.Mutex
	years []int
	err   error
	calls chan struct{}
}

func newCountingRunner(err error) *countingRunner {
	return &countingRunner{err: err, calls: make(chan struct{}, 16)}
}

func (r *countingRunner) RunAll(_ context.Context, year int) ([]*reconcile.Result, error) {
	r.mu.Lock()
	r.years = append(r.years, year)
	r.mu.Unlock()
	select {
	case r.calls <- struct{}{}:
	default:
	}
	return nil, r.err
}

func waitForCall(t *testing.T, r *countingRunner) {
	t.Helper()
	select {
	case <-r.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("runner was not called")
	}
}

func TestScheduler_RunsImmediatelyThenOnInterval(t *testing.T) {
	runner := newCountingRunner(nil)
	s := NewScheduler(runner, Config{Interval: 20 * time.Millisecond}, logging.NewNopLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	waitForCall(t, runner)
	waitForCall(t, runner)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())

	runner.mu.Lock()
	defer runner.mu.Unlock()
	for _, y := range runner.years {
		assert.Equal(t, 0, y)
	}
}

func TestScheduler_StartTwice(t *testing.T) {
	runner := newCountingRunner(nil)
	s := NewScheduler(runner, Config{Interval: time.Hour}, logging.NewNopLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	waitForCall(t, runner)
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_FailuresKeepItRunning(t *testing.T) {
	for name, err := range map[string]error{
		"failure": errors.New("catalog unavailable"),
		"skipped": suberrors.NewRunInProgressError("reconcile:region:2021", nil),
	} {
		t.Run(name, func(t *testing.T) {
			runner := newCountingRunner(err)
			s := NewScheduler(runner, Config{Interval: 10 * time.Millisecond}, logging.NewNopLogger())

			require.NoError(t, s.Start(context.Background()))
			waitForCall(t, runner)
			waitForCall(t, runner)
			require.NoError(t, s.Stop(context.Background()))
		})
	}
}

func TestNewScheduler_DefaultInterval(t *testing.T) {
	s := NewScheduler(newCountingRunner(nil), Config{}, logging.NewNopLogger())
	assert.Equal(t, DefaultInterval, s.config.Interval)
}
