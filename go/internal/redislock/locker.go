// Package redislock is a single-key Redis lease used to keep sweeps from overlapping
// across processes.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguetimers/go/internal/sweep"
)

type Locker struct {
	rs  *redsync.Redsync
	key string
	ttl time.Duration
}

var _ sweep.Locker = (*Locker)(nil)

func New(client redis.UniversalClient, key string, ttl time.Duration) *Locker {
	return &Locker{
		rs:  redsync.New(goredis.NewPool(client)),
		key: key,
		ttl: ttl,
	}
}

// NewClient connects to Redis and checks the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// Acquire takes the lease for ttl without retrying. It returns sweep.ErrLockHeld if
// another holder has it.
func (l *Locker) Acquire(ctx context.Context) (func(context.Context) error, error) {
	mutex := l.rs.NewMutex(l.key,
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(1),
	)
	if err := mutex.TryLockContext(ctx); err != nil {
		if isContention(err) {
			return nil, sweep.ErrLockHeld
		}
		return nil, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}

	log.Debug().Str("key", l.key).Dur("ttl", l.ttl).Msg("sweep lock acquired")
	return func(ctx context.Context) error {
		ok, err := mutex.UnlockContext(ctx)
		if ok {
			return nil
		}
		if err == nil || isContention(err) {
			log.Warn().Str("key", l.key).Msg("sweep lock expired before release")
			return nil
		}
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}, nil
}

func isContention(err error) bool {
	var taken *redsync.ErrTaken
	return errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed)
}
