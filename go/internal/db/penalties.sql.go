package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sqlc-dev/pqtype"
)

const penaltyColumns = `id, compliance_status_id, league_id, user_id, phase, timer_started_at, amount, shortfall, applied_at, details`

func scanPenaltyRecord(row interface{ Scan(...interface{}) error }) (PenaltyRecord, error) {
	var i PenaltyRecord
	err := row.Scan(
		&i.ID,
		&i.ComplianceStatusID,
		&i.LeagueID,
		&i.UserID,
		&i.Phase,
		&i.TimerStartedAt,
		&i.Amount,
		&i.Shortfall,
		&i.AppliedAt,
		&i.Details,
	)
	return i, err
}

const countPenaltyRecords = `-- name: CountPenaltyRecords :one
SELECT COUNT(*)
FROM penalty_records
WHERE league_id = $1
  AND user_id = $2
  AND phase = $3
`

type CountPenaltyRecordsParams struct {
	LeagueID uuid.UUID `json:"league_id"`
	UserID   uuid.UUID `json:"user_id"`
	Phase    string    `json:"phase"`
}

func (q *Queries) CountPenaltyRecords(ctx context.Context, arg CountPenaltyRecordsParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countPenaltyRecords, arg.LeagueID, arg.UserID, arg.Phase)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const insertPenaltyRecord = `-- name: InsertPenaltyRecord :one
INSERT INTO penalty_records (
    id, compliance_status_id, league_id, user_id, phase, timer_started_at, amount, shortfall, applied_at, details
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (compliance_status_id, timer_started_at) DO NOTHING
RETURNING ` + penaltyColumns

type InsertPenaltyRecordParams struct {
	ID                 uuid.UUID             `json:"id"`
	ComplianceStatusID uuid.UUID             `json:"compliance_status_id"`
	LeagueID           uuid.UUID             `json:"league_id"`
	UserID             uuid.UUID             `json:"user_id"`
	Phase              string                `json:"phase"`
	TimerStartedAt     time.Time             `json:"timer_started_at"`
	Amount             decimal.Decimal       `json:"amount"`
	Shortfall          decimal.Decimal       `json:"shortfall"`
	AppliedAt          time.Time             `json:"applied_at"`
	Details            pqtype.NullRawMessage `json:"details"`
}

// InsertPenaltyRecord returns sql.ErrNoRows when a record already exists for the timer generation.
func (q *Queries) InsertPenaltyRecord(ctx context.Context, arg InsertPenaltyRecordParams) (PenaltyRecord, error) {
	row := q.db.QueryRowContext(ctx, insertPenaltyRecord,
		arg.ID,
		arg.ComplianceStatusID,
		arg.LeagueID,
		arg.UserID,
		arg.Phase,
		arg.TimerStartedAt,
		arg.Amount,
		arg.Shortfall,
		arg.AppliedAt,
		arg.Details,
	)
	return scanPenaltyRecord(row)
}

const updatePenaltyShortfall = `-- name: UpdatePenaltyShortfall :exec
UPDATE penalty_records
SET shortfall = $2,
    details = $3
WHERE id = $1
`

type UpdatePenaltyShortfallParams struct {
	ID        uuid.UUID             `json:"id"`
	Shortfall decimal.Decimal       `json:"shortfall"`
	Details   pqtype.NullRawMessage `json:"details"`
}

func (q *Queries) UpdatePenaltyShortfall(ctx context.Context, arg UpdatePenaltyShortfallParams) error {
	_, err := q.db.ExecContext(ctx, updatePenaltyShortfall, arg.ID, arg.Shortfall, arg.Details)
	return err
}

const listPenaltyRecordsByUser = `-- name: ListPenaltyRecordsByUser :many
SELECT ` + penaltyColumns + `
FROM penalty_records
WHERE league_id = $1
  AND user_id = $2
ORDER BY applied_at DESC
`

type ListPenaltyRecordsByUserParams struct {
	LeagueID uuid.UUID `json:"league_id"`
	UserID   uuid.UUID `json:"user_id"`
}

func (q *Queries) ListPenaltyRecordsByUser(ctx context.Context, arg ListPenaltyRecordsByUserParams) ([]PenaltyRecord, error) {
	rows, err := q.db.QueryContext(ctx, listPenaltyRecordsByUser, arg.LeagueID, arg.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PenaltyRecord
	for rows.Next() {
		i, err := scanPenaltyRecord(rows)
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
