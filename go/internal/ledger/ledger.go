// Package ledger owns the budget and locked-credit columns of league_participants.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mcdev12/leaguetimers/go/internal/db"
	"github.com/mcdev12/leaguetimers/go/internal/engineerr"
	"github.com/mcdev12/leaguetimers/go/internal/models"
	"github.com/mcdev12/leaguetimers/go/internal/sqlutil"
)

// FundsPolicy decides what happens when a penalty exceeds the remaining budget.
type FundsPolicy string

const (
	// FundsPolicyClip deducts what is there, floors the budget at zero and reports the shortfall.
	FundsPolicyClip FundsPolicy = "clip"
	// FundsPolicyReject leaves the balance untouched and fails the penalty.
	FundsPolicyReject FundsPolicy = "reject"
)

func (p FundsPolicy) Valid() bool {
	return p == FundsPolicyClip || p == FundsPolicyReject
}

// Outcome describes one applied penalty.
type Outcome struct {
	Requested decimal.Decimal `json:"requested"`
	Applied   decimal.Decimal `json:"applied"`
	Shortfall decimal.Decimal `json:"shortfall"`
	Budget    decimal.Decimal `json:"budget"`
	Locked    decimal.Decimal `json:"locked"`
}

type Ledger struct {
	store  db.Store
	policy FundsPolicy
}

func New(store db.Store, policy FundsPolicy) *Ledger {
	if !policy.Valid() {
		policy = FundsPolicyClip
	}
	return &Ledger{
		store:  store,
		policy: policy,
	}
}

func (l *Ledger) Policy() FundsPolicy {
	return l.policy
}

// ApplyPenalty deducts amount from the participant's budget using q, which must be
// bound to the caller's transaction. Locked credits are clipped so they never exceed
// the remaining budget.
//
// Under FundsPolicyClip a penalty larger than the budget is still written and the
// returned error is an *engineerr.InsufficientFundsError; the caller should commit and
// record it. Under FundsPolicyReject nothing is written.
func (l *Ledger) ApplyPenalty(ctx context.Context, q db.Querier, leagueID, userID uuid.UUID, amount decimal.Decimal) (Outcome, error) {
	if amount.IsNegative() {
		return Outcome{}, fmt.Errorf("penalty amount must not be negative, got %s", amount)
	}

	row, err := q.GetParticipantForUpdate(ctx, db.GetParticipantParams{LeagueID: leagueID, UserID: userID})
	if errors.Is(err, sql.ErrNoRows) {
		return Outcome{}, engineerr.DataIntegrity("no participant %s in league %s", userID, leagueID)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to load participant: %w", sqlutil.Classify(err))
	}
	participant, err := models.NewLeagueParticipant(row.LeagueID, row.UserID, row.CurrentBudget, row.LockedCredits)
	if err != nil {
		return Outcome{}, engineerr.DataIntegrity("%v", err)
	}

	out := Outcome{
		Requested: amount,
		Applied:   amount,
		Shortfall: decimal.Zero,
	}
	budget := participant.CurrentBudget.Sub(amount)
	if budget.IsNegative() {
		out.Shortfall = budget.Neg()
		out.Applied = participant.CurrentBudget
		budget = decimal.Zero
	}
	locked := decimal.Min(participant.LockedCredits, budget)

	var fundsErr error
	if out.Shortfall.IsPositive() {
		fundsErr = &engineerr.InsufficientFundsError{
			Requested: out.Requested,
			Applied:   out.Applied,
			Shortfall: out.Shortfall,
		}
		if l.policy == FundsPolicyReject {
			return Outcome{}, fundsErr
		}
	}

	n, err := q.UpdateParticipantBalance(ctx, db.UpdateParticipantBalanceParams{
		LeagueID:      leagueID,
		UserID:        userID,
		CurrentBudget: budget,
		LockedCredits: locked,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to update participant balance: %w", sqlutil.Classify(err))
	}
	if n == 0 {
		return Outcome{}, engineerr.DataIntegrity("participant %s in league %s vanished during update", userID, leagueID)
	}

	out.Budget = budget
	out.Locked = locked

	log.Debug().
		Str("league_id", leagueID.String()).
		Str("user_id", userID.String()).
		Str("applied", out.Applied.String()).
		Str("shortfall", out.Shortfall.String()).
		Str("budget", budget.String()).
		Msg("penalty applied to ledger")

	return out, fundsErr
}

// CurrentBudget reads the participant's budget outside any transaction.
func (l *Ledger) CurrentBudget(ctx context.Context, leagueID, userID uuid.UUID) (decimal.Decimal, error) {
	row, err := l.store.GetParticipant(ctx, db.GetParticipantParams{LeagueID: leagueID, UserID: userID})
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("participant %s in league %s: %w", userID, leagueID, engineerr.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get participant: %w", sqlutil.Classify(err))
	}
	return row.CurrentBudget, nil
}

// Participant returns the full ledger row.
func (l *Ledger) Participant(ctx context.Context, leagueID, userID uuid.UUID) (*models.LeagueParticipant, error) {
	row, err := l.store.GetParticipant(ctx, db.GetParticipantParams{LeagueID: leagueID, UserID: userID})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("participant %s in league %s: %w", userID, leagueID, engineerr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", sqlutil.Classify(err))
	}
	p, err := models.NewLeagueParticipant(row.LeagueID, row.UserID, row.CurrentBudget, row.LockedCredits)
	if err != nil {
		return nil, engineerr.DataIntegrity("%v", err)
	}
	return p, nil
}
