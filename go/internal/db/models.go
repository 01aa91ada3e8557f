package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sqlc-dev/pqtype"
)

type Auction struct {
	ID               uuid.UUID    `json:"id"`
	LeagueID         uuid.UUID    `json:"league_id"`
	PlayerID         uuid.UUID    `json:"player_id"`
	Status           string       `json:"status"`
	ScheduledEndTime time.Time    `json:"scheduled_end_time"`
	ClosedAt         sql.NullTime `json:"closed_at"`
	CreatedAt        time.Time    `json:"created_at"`
}

type AuctionBid struct {
	ID        uuid.UUID       `json:"id"`
	AuctionID uuid.UUID       `json:"auction_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type UserAuctionResponseTimer struct {
	ID               uuid.UUID    `json:"id"`
	AuctionID        uuid.UUID    `json:"auction_id"`
	LeagueID         uuid.UUID    `json:"league_id"`
	UserID           uuid.UUID    `json:"user_id"`
	ResponseDeadline time.Time    `json:"response_deadline"`
	Status           string       `json:"status"`
	ResolvedAt       sql.NullTime `json:"resolved_at"`
	CreatedAt        time.Time    `json:"created_at"`
}

type UserLeagueComplianceStatus struct {
	ID                     uuid.UUID    `json:"id"`
	LeagueID               uuid.UUID    `json:"league_id"`
	UserID                 uuid.UUID    `json:"user_id"`
	Phase                  string       `json:"phase"`
	ComplianceTimerStartAt sql.NullTime `json:"compliance_timer_start_at"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

type LeagueParticipant struct {
	LeagueID      uuid.UUID       `json:"league_id"`
	UserID        uuid.UUID       `json:"user_id"`
	CurrentBudget decimal.Decimal `json:"current_budget"`
	LockedCredits decimal.Decimal `json:"locked_credits"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type PenaltyRecord struct {
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

type EngineOutbox struct {
	ID          uuid.UUID       `json:"id"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	SentAt      sql.NullTime    `json:"sent_at"`
}
