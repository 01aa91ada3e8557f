package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const complianceColumns = `id, league_id, user_id, phase, compliance_timer_start_at, updated_at`

func scanComplianceStatus(row interface{ Scan(...interface{}) error }) (UserLeagueComplianceStatus, error) {
	var i UserLeagueComplianceStatus
	err := row.Scan(
		&i.ID,
		&i.LeagueID,
		&i.UserID,
		&i.Phase,
		&i.ComplianceTimerStartAt,
		&i.UpdatedAt,
	)
	return i, err
}

const claimComplianceTimer = `-- name: ClaimComplianceTimer :execrows
UPDATE user_league_compliance_status
SET compliance_timer_start_at = $3,
    updated_at = now()
WHERE id = $1
  AND compliance_timer_start_at = $2
`

type ClaimComplianceTimerParams struct {
	ID              uuid.UUID    `json:"id"`
	ExpectedStartAt time.Time    `json:"expected_start_at"`
	NextStartAt     sql.NullTime `json:"next_start_at"`
}

// ClaimComplianceTimer swaps the timer start only if it still holds the value read by the sweep.
func (q *Queries) ClaimComplianceTimer(ctx context.Context, arg ClaimComplianceTimerParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, claimComplianceTimer, arg.ID, arg.ExpectedStartAt, arg.NextStartAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const clearComplianceTimer = `-- name: ClearComplianceTimer :execrows
UPDATE user_league_compliance_status
SET compliance_timer_start_at = NULL,
    updated_at = now()
WHERE league_id = $1
  AND user_id = $2
  AND phase = $3
  AND compliance_timer_start_at IS NOT NULL
`

type ClearComplianceTimerParams struct {
	LeagueID uuid.UUID `json:"league_id"`
	UserID   uuid.UUID `json:"user_id"`
	Phase    string    `json:"phase"`
}

func (q *Queries) ClearComplianceTimer(ctx context.Context, arg ClearComplianceTimerParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, clearComplianceTimer, arg.LeagueID, arg.UserID, arg.Phase)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getComplianceStatus = `-- name: GetComplianceStatus :one
SELECT ` + complianceColumns + `
FROM user_league_compliance_status
WHERE league_id = $1
  AND user_id = $2
  AND phase = $3
`

type GetComplianceStatusParams struct {
	LeagueID uuid.UUID `json:"league_id"`
	UserID   uuid.UUID `json:"user_id"`
	Phase    string    `json:"phase"`
}

func (q *Queries) GetComplianceStatus(ctx context.Context, arg GetComplianceStatusParams) (UserLeagueComplianceStatus, error) {
	return scanComplianceStatus(q.db.QueryRowContext(ctx, getComplianceStatus, arg.LeagueID, arg.UserID, arg.Phase))
}

const listComplianceStatusesByUser = `-- name: ListComplianceStatusesByUser :many
SELECT ` + complianceColumns + `
FROM user_league_compliance_status
WHERE league_id = $1
  AND user_id = $2
ORDER BY phase ASC
`

type ListComplianceStatusesByUserParams struct {
	LeagueID uuid.UUID `json:"league_id"`
	UserID   uuid.UUID `json:"user_id"`
}

func (q *Queries) ListComplianceStatusesByUser(ctx context.Context, arg ListComplianceStatusesByUserParams) ([]UserLeagueComplianceStatus, error) {
	rows, err := q.db.QueryContext(ctx, listComplianceStatusesByUser, arg.LeagueID, arg.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UserLeagueComplianceStatus
	for rows.Next() {
		i, err := scanComplianceStatus(rows)
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

const listRunningComplianceTimers = `-- name: ListRunningComplianceTimers :many
SELECT s.id, s.league_id, s.user_id, s.phase, s.compliance_timer_start_at, s.updated_at,
       l.league_settings
FROM user_league_compliance_status s
LEFT JOIN leagues l ON l.id = s.league_id
WHERE s.compliance_timer_start_at IS NOT NULL
  AND s.compliance_timer_start_at <= $1
  AND (s.compliance_timer_start_at, s.id) > ($2, $3)
ORDER BY s.compliance_timer_start_at ASC, s.id ASC
LIMIT $4
`

type ListRunningComplianceTimersParams struct {
	Now          time.Time `json:"now"`
	AfterStartAt time.Time `json:"after_start_at"`
	AfterID      uuid.UUID `json:"after_id"`
	Limit        int32     `json:"limit"`
}

type ListRunningComplianceTimersRow struct {
	ID                     uuid.UUID             `json:"id"`
	LeagueID               uuid.UUID             `json:"league_id"`
	UserID                 uuid.UUID             `json:"user_id"`
	Phase                  string                `json:"phase"`
	ComplianceTimerStartAt sql.NullTime          `json:"compliance_timer_start_at"`
	UpdatedAt              time.Time             `json:"updated_at"`
	LeagueSettings         pqtype.NullRawMessage `json:"league_settings"`
}

// ListRunningComplianceTimers pages through running countdowns started at or before now,
// keyed on (compliance_timer_start_at, id). League windows are resolved by the caller.
func (q *Queries) ListRunningComplianceTimers(ctx context.Context, arg ListRunningComplianceTimersParams) ([]ListRunningComplianceTimersRow, error) {
	rows, err := q.db.QueryContext(ctx, listRunningComplianceTimers,
		arg.Now,
		arg.AfterStartAt,
		arg.AfterID,
		arg.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListRunningComplianceTimersRow
	for rows.Next() {
		var i ListRunningComplianceTimersRow
		if err := rows.Scan(
			&i.ID,
			&i.LeagueID,
			&i.UserID,
			&i.Phase,
			&i.ComplianceTimerStartAt,
			&i.UpdatedAt,
			&i.LeagueSettings,
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

const startComplianceTimer = `-- name: StartComplianceTimer :one
INSERT INTO user_league_compliance_status (id, league_id, user_id, phase, compliance_timer_start_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (league_id, user_id, phase) DO UPDATE
SET compliance_timer_start_at = COALESCE(user_league_compliance_status.compliance_timer_start_at, EXCLUDED.compliance_timer_start_at),
    updated_at = now()
RETURNING ` + complianceColumns

type StartComplianceTimerParams struct {
	ID       uuid.UUID `json:"id"`
	LeagueID uuid.UUID `json:"league_id"`
	UserID   uuid.UUID `json:"user_id"`
	Phase    string    `json:"phase"`
	StartAt  time.Time `json:"start_at"`
}

// StartComplianceTimer upserts the status row; a running countdown keeps its original start.
func (q *Queries) StartComplianceTimer(ctx context.Context, arg StartComplianceTimerParams) (UserLeagueComplianceStatus, error) {
	row := q.db.QueryRowContext(ctx, startComplianceTimer,
		arg.ID,
		arg.LeagueID,
		arg.UserID,
		arg.Phase,
		arg.StartAt,
	)
	return scanComplianceStatus(row)
}
