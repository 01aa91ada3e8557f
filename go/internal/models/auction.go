package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuctionStatus represents the lifecycle state of an auction
type AuctionStatus string

const (
	AuctionStatusActive AuctionStatus = "active"
	AuctionStatusClosed AuctionStatus = "closed"
)

// Valid reports whether s is a known auction status
func (s AuctionStatus) Valid() bool {
	return s == AuctionStatusActive || s == AuctionStatusClosed
}

// Auction is one player up for bid within a league
type Auction struct {
	ID               uuid.UUID     `json:"id"`
	LeagueID         uuid.UUID     `json:"league_id"`
	PlayerID         uuid.UUID     `json:"player_id"`
	Status           AuctionStatus `json:"status"`
	ScheduledEndTime time.Time     `json:"scheduled_end_time"`
	ClosedAt         *time.Time    `json:"closed_at,omitempty"`
}

// NewAuction validates a persisted auction row.
func NewAuction(id, leagueID, playerID uuid.UUID, status string, scheduledEnd time.Time, closedAt *time.Time) (*Auction, error) {
	st := AuctionStatus(status)
	if !st.Valid() {
		return nil, fmt.Errorf("auction %s: unknown status %q", id, status)
	}
	if scheduledEnd.IsZero() {
		return nil, fmt.Errorf("auction %s: scheduled end time is not set", id)
	}
	if st == AuctionStatusClosed && closedAt == nil {
		return nil, fmt.Errorf("auction %s: closed without a close instant", id)
	}
	return &Auction{
		ID:               id,
		LeagueID:         leagueID,
		PlayerID:         playerID,
		Status:           st,
		ScheduledEndTime: scheduledEnd,
		ClosedAt:         closedAt,
	}, nil
}

// ClosedAuction is the closure event handed to downstream timer owners.
// WinnerID is nil when the auction closed without a bid.
type ClosedAuction struct {
	AuctionID uuid.UUID  `json:"auction_id"`
	LeagueID  uuid.UUID  `json:"league_id"`
	PlayerID  uuid.UUID  `json:"player_id"`
	WinnerID  *uuid.UUID `json:"winner_id,omitempty"`
	ClosedAt  time.Time  `json:"closed_at"`
}
