package scheduler

import (
	"bond-alert-bot/internal/types"
	"context"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingRunner struct {
	started  chan struct{}
	release  chan struct{}
	runs     atomic.Int32
	finished atomic.Bool
}

func (r *blockingRunner) RunCycle(ctx context.Context) (types.CycleReport, error) {
	r.runs.Add(1)
	r.started <- struct{}{}
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	r.finished.Store(true)
	return types.CycleReport{}, nil
}

type funcRunner func(ctx context.Context) (types.CycleReport, error)

func (f funcRunner) RunCycle(ctx context.Context) (types.CycleReport, error) {
	return f(ctx)
}

type skipCounter struct {
	n atomic.Int32
}

func (s *skipCounter) CycleSkipped() {
	s.n.Add(1)
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New(Config{Spec: "every now and then", Runner: funcRunner(nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestNew_NextTickInLocation(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)

	s, err := New(Config{Location: rome, Runner: funcRunner(nil)})
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	next := s.Next().In(rome)
	require.False(t, next.IsZero())
	assert.Zero(t, next.Minute()%5)
	assert.GreaterOrEqual(t, next.Hour(), 7)
	assert.LessOrEqual(t, next.Hour(), 18)
	assert.NotEqual(t, time.Saturday, next.Weekday())
	assert.NotEqual(t, time.Sunday, next.Weekday())
}

func TestTrigger_SkipsWhileRunning(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	skips := &skipCounter{}

	s, err := New(Config{Runner: runner, Skips: skips})
	require.NoError(t, err)

	first := make(chan struct{})
	go func() {
		s.Trigger()
		close(first)
	}()
	<-runner.started

	s.Trigger()
	assert.Equal(t, int32(1), runner.runs.Load())
	assert.Equal(t, int32(1), skips.n.Load())

	close(runner.release)
	<-first

	// the guard is released once the cycle returns
	go func() { <-runner.started }()
	s.Trigger()
	assert.Equal(t, int32(2), runner.runs.Load())
	assert.Equal(t, int32(1), skips.n.Load())
}

func TestTrigger_RecoversPanic(t *testing.T) {
	calls := 0
	s, err := New(Config{Runner: funcRunner(func(context.Context) (types.CycleReport, error) {
		calls++
		if calls == 1 {
			panic("nil map")
		}
		return types.CycleReport{}, errors.New("store unavailable")
	})})
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.Trigger() })
	// a panicking cycle must not leave the guard held
	assert.NotPanics(t, func() { s.Trigger() })
	assert.Equal(t, 2, calls)
}

func TestStop_WaitsForTriggeredCycle(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}

	s, err := New(Config{Runner: runner})
	require.NoError(t, err)
	s.Start()

	go s.Trigger()
	<-runner.started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("cycle was not cancelled")
	}

	assert.True(t, runner.finished.Load(), "Stop returned before the triggered cycle finished")
	assert.Equal(t, int32(1), runner.runs.Load())
}
