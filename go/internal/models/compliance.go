package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CompliancePhase names the rule a compliance timer is counting down for
type CompliancePhase string

const (
	// CompliancePhaseResponse is raised when an auction winner lets the response window lapse
	CompliancePhaseResponse CompliancePhase = "response"
	CompliancePhaseRoster   CompliancePhase = "roster"
)

// ComplianceStatus is a participant's standing against one league rule.
// A nil TimerStartAt means compliant.
type ComplianceStatus struct {
	ID           uuid.UUID       `json:"id"`
	LeagueID     uuid.UUID       `json:"league_id"`
	UserID       uuid.UUID       `json:"user_id"`
	Phase        CompliancePhase `json:"phase"`
	TimerStartAt *time.Time      `json:"compliance_timer_start_at,omitempty"`
}

// NewComplianceStatus validates a persisted compliance row.
func NewComplianceStatus(id, leagueID, userID uuid.UUID, phase string, startAt *time.Time) (*ComplianceStatus, error) {
	if phase == "" {
		return nil, fmt.Errorf("compliance status %s: empty phase", id)
	}
	if leagueID == uuid.Nil || userID == uuid.Nil {
		return nil, fmt.Errorf("compliance status %s: missing league or user", id)
	}
	return &ComplianceStatus{
		ID:           id,
		LeagueID:     leagueID,
		UserID:       userID,
		Phase:        CompliancePhase(phase),
		TimerStartAt: startAt,
	}, nil
}

// Running reports whether a countdown is active
func (c ComplianceStatus) Running() bool {
	return c.TimerStartAt != nil
}

// Deadline returns start+window, or nil when compliant
func (c ComplianceStatus) Deadline(window time.Duration) *time.Time {
	if c.TimerStartAt == nil {
		return nil
	}
	d := c.TimerStartAt.Add(window)
	return &d
}

// ExpiredCompliance is a sweep candidate: a running timer whose window has elapsed.
type ExpiredCompliance struct {
	Status ComplianceStatus
	Window time.Duration
}

// Violation identifies a compliance countdown to start
type Violation struct {
	LeagueID uuid.UUID       `json:"league_id"`
	UserID   uuid.UUID       `json:"user_id"`
	Phase    CompliancePhase `json:"phase"`
}

// PenaltyRecord is the audit row of one applied penalty
type PenaltyRecord struct {
	ID                 uuid.UUID       `json:"id"`
	ComplianceStatusID uuid.UUID       `json:"compliance_status_id"`
	LeagueID           uuid.UUID       `json:"league_id"`
	UserID             uuid.UUID       `json:"user_id"`
	Phase              CompliancePhase `json:"phase"`
	TimerStartedAt     time.Time       `json:"timer_started_at"`
	Amount             decimal.Decimal `json:"amount"`
	Shortfall          decimal.Decimal `json:"shortfall"`
	AppliedAt          time.Time       `json:"applied_at"`
}
