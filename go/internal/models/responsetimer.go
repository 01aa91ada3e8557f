package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResponseStatus is the state of a winner's confirmation window
type ResponseStatus string

const (
	ResponseStatusPending  ResponseStatus = "pending"
	ResponseStatusAccepted ResponseStatus = "accepted"
	ResponseStatusDeclined ResponseStatus = "declined"
	ResponseStatusExpired  ResponseStatus = "expired"
)

// Valid reports whether s is a known response status
func (s ResponseStatus) Valid() bool {
	switch s {
	case ResponseStatusPending, ResponseStatusAccepted, ResponseStatusDeclined, ResponseStatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s
func (s ResponseStatus) Terminal() bool {
	return s != ResponseStatusPending
}

// ResponseTimer tracks whether an auction winner confirmed the result
type ResponseTimer struct {
	ID               uuid.UUID      `json:"id"`
	AuctionID        uuid.UUID      `json:"auction_id"`
	LeagueID         uuid.UUID      `json:"league_id"`
	UserID           uuid.UUID      `json:"user_id"`
	ResponseDeadline time.Time      `json:"response_deadline"`
	Status           ResponseStatus `json:"status"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
}

// NewResponseTimer validates a persisted response timer row.
func NewResponseTimer(id, auctionID, leagueID, userID uuid.UUID, deadline time.Time, status string, resolvedAt *time.Time) (*ResponseTimer, error) {
	st := ResponseStatus(status)
	if !st.Valid() {
		return nil, fmt.Errorf("response timer %s: unknown status %q", id, status)
	}
	if auctionID == uuid.Nil || userID == uuid.Nil {
		return nil, fmt.Errorf("response timer %s: missing auction or user", id)
	}
	if deadline.IsZero() {
		return nil, fmt.Errorf("response timer %s: deadline is not set", id)
	}
	return &ResponseTimer{
		ID:               id,
		AuctionID:        auctionID,
		LeagueID:         leagueID,
		UserID:           userID,
		ResponseDeadline: deadline,
		Status:           st,
		ResolvedAt:       resolvedAt,
	}, nil
}
