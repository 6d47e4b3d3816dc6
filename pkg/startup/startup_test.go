package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/subdivisions/pkg/logging"
)

type recorder struct {
	events []string
}

func (r *recorder) dep(name string, needs ...string) *Func {
	return &Func{
		Name:  name,
		Needs: needs,
		StartFunc: func(context.Context) error {
			r.events = append(r.events, "start "+name)
			return nil
		},
		StopFunc: func(context.Context) error {
			r.events = append(r.events, "stop "+name)
			return nil
		},
	}
}

func TestStartup_StartsParentsFirstAndStopsInReverse(t *testing.T) {
	rec := &recorder{}
	s := NewStartup(logging.NewNopLogger(), 1)
	s.AddDependency(rec.dep("http", "database", "tracing"))
	s.AddDependency(rec.dep("database"))
	s.AddDependency(rec.dep("tracing"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start database", "start tracing", "start http"}, rec.events)
	assert.Equal(t, StartupStatusStarted, s.Status("http"))

	rec.events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, "stop http", rec.events[0])
	assert.ElementsMatch(t, []string{"stop http", "stop database", "stop tracing"}, rec.events)
	assert.Equal(t, StartupStatusStopped, s.Status("database"))
}

func TestStartup_RetriesFailedDependency(t *testing.T) {
	attempts := 0
	s := NewStartup(logging.NewNopLogger(), 3)
	s.backoffUnit = time.Millisecond
	s.AddDependency(&Func{Name: "database", StartFunc: func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, attempts)
}

func TestStartup_GivesUpAfterMaxAttempts(t *testing.T) {
	dbErr := errors.New("connection refused")
	s := NewStartup(logging.NewNopLogger(), 2)
	s.backoffUnit = time.Millisecond
	s.AddDependency(&Func{Name: "database", StartFunc: func(context.Context) error { return dbErr }})

	err := s.Start(context.Background())

	require.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StartupStatusFailed, s.Status("database"))
}

func TestStartup_StartedDependenciesAreNotRestarted(t *testing.T) {
	rec := &recorder{}
	redisAttempts := 0
	s := NewStartup(logging.NewNopLogger(), 2)
	s.backoffUnit = time.Millisecond
	s.AddDependency(rec.dep("database"))
	s.AddDependency(&Func{Name: "redis", StartFunc: func(context.Context) error {
		redisAttempts++
		if redisAttempts == 1 {
			return errors.New("not yet")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start database"}, rec.events)
}

func TestStartup_UnknownAndCyclicDependencies(t *testing.T) {
	s := NewStartup(logging.NewNopLogger(), 1)
	s.AddDependency(&Func{Name: "http", Needs: []string{"database"}})
	require.ErrorContains(t, s.Start(context.Background()), "not registered")

	s = NewStartup(logging.NewNopLogger(), 1)
	s.AddDependency(&Func{Name: "a", Needs: []string{"b"}})
	s.AddDependency(&Func{Name: "b", Needs: []string{"a"}})
	require.ErrorContains(t, s.Start(context.Background()), "cycle")
}
