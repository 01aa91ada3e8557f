package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLocker struct {
	held     bool
	acquired int
	released int
}

func (l *stubLocker) Acquire(context.Context) (func(context.Context) error, error) {
	if l.held {
		return nil, ErrLockHeld
	}
	l.acquired++
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

func newStubSweep(calls chan time.Time) *Sweep {
	return New(&stubCloser{calls: calls}, stubExpirer{}, &stubProcessor{})
}

func TestRunner_TicksOnInterval(t *testing.T) {
	clock := clockwork.NewFakeClockAt(at(1000))
	calls := make(chan time.Time, 4)
	r := NewRunner(newStubSweep(calls), clock, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Equal(t, at(1000), <-calls)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	assert.Equal(t, at(1060), <-calls)

	cancel()
	require.NoError(t, <-done)

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, at(1060), last.Now)
}

func TestRunner_RejectsBadInterval(t *testing.T) {
	r := NewRunner(newStubSweep(nil), clockwork.NewFakeClock(), 0, nil)
	assert.Error(t, r.Run(context.Background()))
}

func TestRunner_TickHonoursLock(t *testing.T) {
	calls := make(chan time.Time, 2)
	locker := &stubLocker{}
	r := NewRunner(newStubSweep(calls), clockwork.NewFakeClockAt(at(50)), time.Minute, locker)

	assert.True(t, r.Tick(context.Background()))
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
	assert.Len(t, calls, 1)

	locker.held = true
	assert.False(t, r.Tick(context.Background()))
	assert.Len(t, calls, 1)
}
