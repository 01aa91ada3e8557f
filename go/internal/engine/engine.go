// Package engine wires the timer components together.
package engine

import (
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/leaguetimers/go/internal/api"
	"github.com/mcdev12/leaguetimers/go/internal/auction"
	"github.com/mcdev12/leaguetimers/go/internal/compliance"
	"github.com/mcdev12/leaguetimers/go/internal/config"
	"github.com/mcdev12/leaguetimers/go/internal/db"
	"github.com/mcdev12/leaguetimers/go/internal/leagues"
	"github.com/mcdev12/leaguetimers/go/internal/ledger"
	"github.com/mcdev12/leaguetimers/go/internal/responsetimer"
	"github.com/mcdev12/leaguetimers/go/internal/sweep"
)

type Engine struct {
	Leagues    *leagues.Resolver
	Ledger     *ledger.Ledger
	Compliance *compliance.Service
	Timers     *responsetimer.Manager
	Auctions   *auction.Scheduler
	Sweep      *sweep.Sweep
	API        *api.Service
}

// New builds every component over store:
// Resolver/Ledger → Compliance → Response timers → Auctions → Sweep → API.
func New(store db.Store, cfg *config.Config, clock clockwork.Clock) (*Engine, error) {
	defaults, err := cfg.TimerDefaults()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.PenaltyPolicy()
	if err != nil {
		return nil, err
	}
	batch := cfg.Sweep.BatchSize

	e := &Engine{
		Leagues: leagues.NewResolver(defaults),
		Ledger:  ledger.New(store, cfg.FundsPolicy()),
	}
	e.Compliance = compliance.NewService(store, e.Ledger, e.Leagues, policy, batch)
	e.Timers = responsetimer.NewManager(store, e.Compliance, e.Leagues, batch)
	e.Auctions = auction.NewScheduler(store, auction.HighestBidResolver{}, e.Timers, batch)
	e.Sweep = sweep.New(e.Auctions, e.Timers, e.Compliance)
	e.API = api.NewService(e.Sweep, e.Auctions, e.Timers, e.Compliance, clock,
		api.WithNowOverride(cfg.Server.AllowNowOverride))
	return e, nil
}
