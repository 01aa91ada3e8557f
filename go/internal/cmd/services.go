package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguetimers/go/internal/api"
	"github.com/mcdev12/leaguetimers/go/internal/config"
	"github.com/mcdev12/leaguetimers/go/internal/db"
	"github.com/mcdev12/leaguetimers/go/internal/engine"
	"github.com/mcdev12/leaguetimers/go/internal/redislock"
	"github.com/mcdev12/leaguetimers/go/internal/sweep"
)

type Services struct {
	Store  *db.SQLStore
	API    *api.Service
	Runner *sweep.Runner

	closers []func() error
}

func (s *Services) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			log.Error().Err(err).Msg("failed to close service dependency")
		}
	}
}

func setupServices(ctx context.Context, store *db.SQLStore, cfg *config.Config, clock clockwork.Clock) (*Services, error) {
	e, err := engine.New(store, cfg, clock)
	if err != nil {
		return nil, err
	}

	services := &Services{
		Store: store,
		API:   e.API,
	}

	if cfg.Sweep.Enabled {
		var locker sweep.Locker
		if cfg.Sweep.Lock.Enabled {
			client, err := redislock.NewClient(ctx, cfg.Sweep.Lock.Addr, cfg.Sweep.Lock.Password, cfg.Sweep.Lock.DB)
			if err != nil {
				return nil, fmt.Errorf("failed to connect sweep lock: %w", err)
			}
			services.closers = append(services.closers, client.Close)
			locker = redislock.New(client, cfg.Sweep.Lock.Key, cfg.Sweep.Lock.TTL)
		}
		services.Runner = sweep.NewRunner(e.Sweep, clock, cfg.Sweep.Interval, locker)
	}

	log.Info().
		Str("penalty_policy", cfg.Penalty.Policy).
		Str("funds_policy", string(cfg.FundsPolicy())).
		Bool("sweep_runner", services.Runner != nil).
		Msg("engine services ready")
	return services, nil
}
