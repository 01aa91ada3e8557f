package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const getParticipant = `-- name: GetParticipant :one
SELECT league_id, user_id, current_budget, locked_credits, updated_at
FROM league_participants
WHERE league_id = $1
  AND user_id = $2
`

type GetParticipantParams struct {
	LeagueID uuid.UUID `json:"league_id"`
	UserID   uuid.UUID `json:"user_id"`
}

func (q *Queries) GetParticipant(ctx context.Context, arg GetParticipantParams) (LeagueParticipant, error) {
	row := q.db.QueryRowContext(ctx, getParticipant, arg.LeagueID, arg.UserID)
	var i LeagueParticipant
	err := row.Scan(
		&i.LeagueID,
		&i.UserID,
		&i.CurrentBudget,
		&i.LockedCredits,
		&i.UpdatedAt,
	)
	return i, err
}

const getParticipantForUpdate = `-- name: GetParticipantForUpdate :one
SELECT league_id, user_id, current_budget, locked_credits, updated_at
FROM league_participants
WHERE league_id = $1
  AND user_id = $2
FOR UPDATE
`

func (q *Queries) GetParticipantForUpdate(ctx context.Context, arg GetParticipantParams) (LeagueParticipant, error) {
	row := q.db.QueryRowContext(ctx, getParticipantForUpdate, arg.LeagueID, arg.UserID)
	var i LeagueParticipant
	err := row.Scan(
		&i.LeagueID,
		&i.UserID,
		&i.CurrentBudget,
		&i.LockedCredits,
		&i.UpdatedAt,
	)
	return i, err
}

const updateParticipantBalance = `-- name: UpdateParticipantBalance :execrows
UPDATE league_participants
SET current_budget = $3,
    locked_credits = $4,
    updated_at = now()
WHERE league_id = $1
  AND user_id = $2
`

type UpdateParticipantBalanceParams struct {
	LeagueID      uuid.UUID       `json:"league_id"`
	UserID        uuid.UUID       `json:"user_id"`
	CurrentBudget decimal.Decimal `json:"current_budget"`
	LockedCredits decimal.Decimal `json:"locked_credits"`
}

func (q *Queries) UpdateParticipantBalance(ctx context.Context, arg UpdateParticipantBalanceParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateParticipantBalance,
		arg.LeagueID,
		arg.UserID,
		arg.CurrentBudget,
		arg.LockedCredits,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
