package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const responseTimerColumns = `id, auction_id, league_id, user_id, response_deadline, status, resolved_at, created_at`

func scanResponseTimer(row interface{ Scan(...interface{}) error }) (UserAuctionResponseTimer, error) {
	var i UserAuctionResponseTimer
	err := row.Scan(
		&i.ID,
		&i.AuctionID,
		&i.LeagueID,
		&i.UserID,
		&i.ResponseDeadline,
		&i.Status,
		&i.ResolvedAt,
		&i.CreatedAt,
	)
	return i, err
}

const createResponseTimer = `-- name: CreateResponseTimer :one
INSERT INTO user_auction_response_timers (id, auction_id, league_id, user_id, response_deadline, status)
VALUES ($1, $2, $3, $4, $5, 'pending')
ON CONFLICT (auction_id) DO NOTHING
RETURNING ` + responseTimerColumns

type CreateResponseTimerParams struct {
	ID               uuid.UUID `json:"id"`
	AuctionID        uuid.UUID `json:"auction_id"`
	LeagueID         uuid.UUID `json:"league_id"`
	UserID           uuid.UUID `json:"user_id"`
	ResponseDeadline time.Time `json:"response_deadline"`
}

// CreateResponseTimer returns sql.ErrNoRows when the auction already has a timer.
func (q *Queries) CreateResponseTimer(ctx context.Context, arg CreateResponseTimerParams) (UserAuctionResponseTimer, error) {
	row := q.db.QueryRowContext(ctx, createResponseTimer,
		arg.ID,
		arg.AuctionID,
		arg.LeagueID,
		arg.UserID,
		arg.ResponseDeadline,
	)
	return scanResponseTimer(row)
}

const getResponseTimer = `-- name: GetResponseTimer :one
SELECT ` + responseTimerColumns + `
FROM user_auction_response_timers
WHERE id = $1
`

func (q *Queries) GetResponseTimer(ctx context.Context, id uuid.UUID) (UserAuctionResponseTimer, error) {
	return scanResponseTimer(q.db.QueryRowContext(ctx, getResponseTimer, id))
}

const getResponseTimerByAuction = `-- name: GetResponseTimerByAuction :one
SELECT ` + responseTimerColumns + `
FROM user_auction_response_timers
WHERE auction_id = $1
`

func (q *Queries) GetResponseTimerByAuction(ctx context.Context, auctionID uuid.UUID) (UserAuctionResponseTimer, error) {
	return scanResponseTimer(q.db.QueryRowContext(ctx, getResponseTimerByAuction, auctionID))
}

const listDueResponseTimers = `-- name: ListDueResponseTimers :many
SELECT ` + responseTimerColumns + `
FROM user_auction_response_timers
WHERE status = 'pending'
  AND response_deadline <= $1
  AND (response_deadline, id) > ($2, $3)
ORDER BY response_deadline ASC, id ASC
LIMIT $4
`

type ListDueResponseTimersParams struct {
	Now           time.Time `json:"now"`
	AfterDeadline time.Time `json:"after_deadline"`
	AfterID       uuid.UUID `json:"after_id"`
	Limit         int32     `json:"limit"`
}

// ListDueResponseTimers pages through due pending timers keyed on (response_deadline, id).
func (q *Queries) ListDueResponseTimers(ctx context.Context, arg ListDueResponseTimersParams) ([]UserAuctionResponseTimer, error) {
	rows, err := q.db.QueryContext(ctx, listDueResponseTimers, arg.Now, arg.AfterDeadline, arg.AfterID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UserAuctionResponseTimer
	for rows.Next() {
		i, err := scanResponseTimer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const transitionResponseTimer = `-- name: TransitionResponseTimer :execrows
UPDATE user_auction_response_timers
SET status = $3,
    resolved_at = $4
WHERE id = $1
  AND status = $2
`

type TransitionResponseTimerParams struct {
	ID         uuid.UUID `json:"id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ResolvedAt time.Time `json:"resolved_at"`
}

func (q *Queries) TransitionResponseTimer(ctx context.Context, arg TransitionResponseTimerParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, transitionResponseTimer,
		arg.ID,
		arg.FromStatus,
		arg.ToStatus,
		arg.ResolvedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
