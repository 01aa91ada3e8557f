package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcdev12/leaguetimers/go/internal/models"
)

// PenaltyInput is what a policy sees for one expired timer
type PenaltyInput struct {
	Status        models.ComplianceStatus
	Timers        models.TimerConfig
	PriorOffences int64
	Now           time.Time
}

// PenaltyDecision is the amount to charge and what happens to the timer afterwards.
// A nil NextStartAt clears the timer.
type PenaltyDecision struct {
	Amount      decimal.Decimal
	NextStartAt *time.Time
	Escalated   bool
}

// PenaltyPolicy decides the penalty for an expired compliance timer
type PenaltyPolicy interface {
	Name() string
	Decide(ctx context.Context, in PenaltyInput) (PenaltyDecision, error)
}

// FlatPolicy charges the league penalty amount and clears the timer.
type FlatPolicy struct{}

func (FlatPolicy) Name() string { return "flat" }

func (FlatPolicy) Decide(_ context.Context, in PenaltyInput) (PenaltyDecision, error) {
	return PenaltyDecision{Amount: in.Timers.PenaltyAmount}, nil
}

// TieredPolicy multiplies the league penalty amount by the multiplier for the
// participant's offence count in this phase. The last multiplier applies to every
// later offence. With RestartTimer set, a penalty that is not yet on the last tier
// restarts the countdown at the sweep instant instead of clearing it.
type TieredPolicy struct {
	Multipliers  []decimal.Decimal
	RestartTimer bool
}

func NewTieredPolicy(multipliers []decimal.Decimal, restart bool) (*TieredPolicy, error) {
	if len(multipliers) == 0 {
		return nil, fmt.Errorf("tiered policy needs at least one multiplier")
	}
	for i, m := range multipliers {
		if m.IsNegative() {
			return nil, fmt.Errorf("tier %d multiplier must not be negative, got %s", i+1, m)
		}
	}
	return &TieredPolicy{Multipliers: multipliers, RestartTimer: restart}, nil
}

func (p *TieredPolicy) Name() string { return "tiered" }

func (p *TieredPolicy) Decide(_ context.Context, in PenaltyInput) (PenaltyDecision, error) {
	if len(p.Multipliers) == 0 {
		return PenaltyDecision{}, fmt.Errorf("tiered policy has no multipliers")
	}
	tier := int(in.PriorOffences)
	last := len(p.Multipliers) - 1
	if tier > last {
		tier = last
	}

	d := PenaltyDecision{
		Amount:    in.Timers.PenaltyAmount.Mul(p.Multipliers[tier]),
		Escalated: tier > 0,
	}
	if p.RestartTimer && tier < last {
		next := in.Now
		d.NextStartAt = &next
	}
	return d, nil
}
