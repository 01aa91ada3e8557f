package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrLockHeld is returned by a Locker when another process holds the sweep lock.
var ErrLockHeld = errors.New("sweep lock held elsewhere")

// Locker guards against overlapping sweeps across processes.
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// Runner triggers a sweep on a fixed interval for deployments without an
// external scheduler.
type Runner struct {
	sweep    *Sweep
	clock    clockwork.Clock
	interval time.Duration
	locker   Locker

	mu      sync.Mutex
	running bool
	last    *Result
}

func NewRunner(sweep *Sweep, clock clockwork.Clock, interval time.Duration, locker Locker) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{
		sweep:    sweep,
		clock:    clock,
		interval: interval,
		locker:   locker,
	}
}

// Run blocks, sweeping once immediately and then on every tick, until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", r.interval)
	}
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("sweep runner already running")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Bool("locked", r.locker != nil).Msg("sweep runner started")
	r.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sweep runner stopped")
			return nil
		case <-ticker.Chan():
			r.Tick(ctx)
		}
	}
}

// Tick runs one sweep at the clock's current instant. It returns false when the
// sweep was skipped because another process holds the lock.
func (r *Runner) Tick(ctx context.Context) bool {
	if r.locker != nil {
		release, err := r.locker.Acquire(ctx)
		if errors.Is(err, ErrLockHeld) {
			log.Debug().Msg("sweep skipped, lock held elsewhere")
			return false
		}
		if err != nil {
			log.Error().Err(err).Msg("failed to acquire sweep lock")
			return false
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Msg("failed to release sweep lock")
			}
		}()
	}

	res, err := r.sweep.Run(ctx, r.clock.Now())
	if err != nil {
		log.Error().Err(err).Int("row_errors", len(res.Errors)).Msg("sweep failed")
	}
	r.mu.Lock()
	r.last = &res
	r.mu.Unlock()
	return true
}

// Last returns the result of the most recent sweep, if any.
func (r *Runner) Last() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Result{}, false
	}
	return *r.last, true
}
