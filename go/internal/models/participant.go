package models

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LeagueParticipant is a manager's ledger entry within a league
type LeagueParticipant struct {
	LeagueID      uuid.UUID       `json:"league_id"`
	UserID        uuid.UUID       `json:"user_id"`
	CurrentBudget decimal.Decimal `json:"current_budget"`
	LockedCredits decimal.Decimal `json:"locked_credits"`
}

// NewLeagueParticipant validates a persisted ledger row.
func NewLeagueParticipant(leagueID, userID uuid.UUID, budget, locked decimal.Decimal) (*LeagueParticipant, error) {
	if budget.IsNegative() || locked.IsNegative() {
		return nil, fmt.Errorf("participant %s/%s: negative balance (budget %s, locked %s)", leagueID, userID, budget, locked)
	}
	return &LeagueParticipant{
		LeagueID:      leagueID,
		UserID:        userID,
		CurrentBudget: budget,
		LockedCredits: locked,
	}, nil
}

// Available is the part of the budget not reserved against pending obligations
func (p LeagueParticipant) Available() decimal.Decimal {
	return p.CurrentBudget.Sub(p.LockedCredits)
}
