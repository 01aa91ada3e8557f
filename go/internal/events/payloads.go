package events

import (
	"time"
)

// Event types written to engine_outbox and used as the last subject token on publish.
const (
	TypeAuctionClosed          = "AuctionClosed"
	TypeResponseTimerCreated   = "ResponseTimerCreated"
	TypeResponseTimerExpired   = "ResponseTimerExpired"
	TypeResponseTimerResolved  = "ResponseTimerResolved"
	TypeComplianceTimerStarted = "ComplianceTimerStarted"
	TypeComplianceTimerCleared = "ComplianceTimerCleared"
	TypePenaltyApplied         = "PenaltyApplied"
)

// AuctionClosedPayload is the payload for an AuctionClosed event
type AuctionClosedPayload struct {
	AuctionID string    `json:"auction_id"`
	LeagueID  string    `json:"league_id"`
	PlayerID  string    `json:"player_id"`
	WinnerID  string    `json:"winner_id,omitempty"`
	ClosedAt  time.Time `json:"closed_at"`
}

// ResponseTimerCreatedPayload is the payload for a ResponseTimerCreated event
type ResponseTimerCreatedPayload struct {
	TimerID          string    `json:"timer_id"`
	AuctionID        string    `json:"auction_id"`
	LeagueID         string    `json:"league_id"`
	UserID           string    `json:"user_id"`
	ResponseDeadline time.Time `json:"response_deadline"`
	WindowSec        int       `json:"window_sec"`
}

// ResponseTimerExpiredPayload is the payload for a ResponseTimerExpired event
type ResponseTimerExpiredPayload struct {
	TimerID   string    `json:"timer_id"`
	AuctionID string    `json:"auction_id"`
	LeagueID  string    `json:"league_id"`
	UserID    string    `json:"user_id"`
	ExpiredAt time.Time `json:"expired_at"`
}

// ResponseTimerResolvedPayload is the payload for a ResponseTimerResolved event
type ResponseTimerResolvedPayload struct {
	TimerID    string    `json:"timer_id"`
	AuctionID  string    `json:"auction_id"`
	LeagueID   string    `json:"league_id"`
	UserID     string    `json:"user_id"`
	Outcome    string    `json:"outcome"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// ComplianceTimerStartedPayload is the payload for a ComplianceTimerStarted event
type ComplianceTimerStartedPayload struct {
	StatusID  string    `json:"status_id"`
	LeagueID  string    `json:"league_id"`
	UserID    string    `json:"user_id"`
	Phase     string    `json:"phase"`
	StartedAt time.Time `json:"started_at"`
	Reason    string    `json:"reason,omitempty"`
}

// ComplianceTimerClearedPayload is the payload for a ComplianceTimerCleared event
type ComplianceTimerClearedPayload struct {
	LeagueID  string    `json:"league_id"`
	UserID    string    `json:"user_id"`
	Phase     string    `json:"phase"`
	ClearedAt time.Time `json:"cleared_at"`
}

// PenaltyAppliedPayload is the payload for a PenaltyApplied event
type PenaltyAppliedPayload struct {
	PenaltyID      string    `json:"penalty_id"`
	StatusID       string    `json:"status_id"`
	LeagueID       string    `json:"league_id"`
	UserID         string    `json:"user_id"`
	Phase          string    `json:"phase"`
	TimerStartedAt time.Time `json:"timer_started_at"`
	Amount         string    `json:"amount"`
	Shortfall      string    `json:"shortfall"`
	Escalated      bool      `json:"escalated"`
	AppliedAt      time.Time `json:"applied_at"`
}
