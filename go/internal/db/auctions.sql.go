package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const closeAuction = `-- name: CloseAuction :execrows
UPDATE auctions
SET status = 'closed',
    closed_at = $2
WHERE id = $1
  AND status = 'active'
`

type CloseAuctionParams struct {
	ID       uuid.UUID `json:"id"`
	ClosedAt time.Time `json:"closed_at"`
}

func (q *Queries) CloseAuction(ctx context.Context, arg CloseAuctionParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, closeAuction, arg.ID, arg.ClosedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getAuction = `-- name: GetAuction :one
SELECT id, league_id, player_id, status, scheduled_end_time, closed_at, created_at
FROM auctions
WHERE id = $1
`

func (q *Queries) GetAuction(ctx context.Context, id uuid.UUID) (Auction, error) {
	row := q.db.QueryRowContext(ctx, getAuction, id)
	var i Auction
	err := row.Scan(
		&i.ID,
		&i.LeagueID,
		&i.PlayerID,
		&i.Status,
		&i.ScheduledEndTime,
		&i.ClosedAt,
		&i.CreatedAt,
	)
	return i, err
}

const getWinningBid = `-- name: GetWinningBid :one
SELECT id, auction_id, user_id, amount, created_at
FROM auction_bids
WHERE auction_id = $1
ORDER BY amount DESC, created_at ASC
LIMIT 1
`

func (q *Queries) GetWinningBid(ctx context.Context, auctionID uuid.UUID) (AuctionBid, error) {
	row := q.db.QueryRowContext(ctx, getWinningBid, auctionID)
	var i AuctionBid
	err := row.Scan(
		&i.ID,
		&i.AuctionID,
		&i.UserID,
		&i.Amount,
		&i.CreatedAt,
	)
	return i, err
}

const listDueAuctions = `-- name: ListDueAuctions :many
SELECT id, league_id, player_id, status, scheduled_end_time, closed_at, created_at
FROM auctions
WHERE status = 'active'
  AND scheduled_end_time <= $1
  AND (scheduled_end_time, id) > ($2, $3)
ORDER BY scheduled_end_time ASC, id ASC
LIMIT $4
`

type ListDueAuctionsParams struct {
	Now        time.Time `json:"now"`
	AfterEndAt time.Time `json:"after_end_at"`
	AfterID    uuid.UUID `json:"after_id"`
	Limit      int32     `json:"limit"`
}

// ListDueAuctions pages through due auctions keyed on (scheduled_end_time, id).
func (q *Queries) ListDueAuctions(ctx context.Context, arg ListDueAuctionsParams) ([]Auction, error) {
	rows, err := q.db.QueryContext(ctx, listDueAuctions, arg.Now, arg.AfterEndAt, arg.AfterID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Auction
	for rows.Next() {
		var i Auction
		if err := rows.Scan(
			&i.ID,
			&i.LeagueID,
			&i.PlayerID,
			&i.Status,
			&i.ScheduledEndTime,
			&i.ClosedAt,
			&i.CreatedAt,
		); err != nil {
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
