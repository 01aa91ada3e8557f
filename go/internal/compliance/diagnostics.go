package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/leaguetimers/go/internal/db"
	"github.com/mcdev12/leaguetimers/go/internal/models"
	"github.com/mcdev12/leaguetimers/go/internal/sqlutil"
)

// PhaseState is the read-only view of one compliance countdown
type PhaseState struct {
	StatusID     uuid.UUID              `json:"status_id"`
	Phase        models.CompliancePhase `json:"phase"`
	Running      bool                   `json:"running"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	Deadline     *time.Time             `json:"deadline,omitempty"`
	RemainingSec int64                  `json:"remaining_sec"`
	Expired      bool                   `json:"expired"`
}

// UserState is a participant's compliance standing in one league
type UserState struct {
	LeagueID  uuid.UUID              `json:"league_id"`
	UserID    uuid.UUID              `json:"user_id"`
	WindowSec int64                  `json:"window_sec"`
	Phases    []PhaseState           `json:"phases"`
	Penalties []models.PenaltyRecord `json:"penalties"`
}

// State reports every compliance countdown and penalty for the participant as of now.
func (s *Service) State(ctx context.Context, leagueID, userID uuid.UUID, now time.Time) (*UserState, error) {
	timers, err := s.leagues.TimerConfig(ctx, s.store, leagueID)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.ListComplianceStatusesByUser(ctx, db.ListComplianceStatusesByUserParams{
		LeagueID: leagueID,
		UserID:   userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list compliance statuses: %w", sqlutil.Classify(err))
	}

	state := &UserState{
		LeagueID:  leagueID,
		UserID:    userID,
		WindowSec: int64(timers.ComplianceWindow / time.Second),
		Phases:    make([]PhaseState, 0, len(rows)),
		Penalties: []models.PenaltyRecord{},
	}
	for _, row := range rows {
		status, err := toStatus(row)
		if err != nil {
			return nil, err
		}
		ps := PhaseState{
			StatusID:  status.ID,
			Phase:     status.Phase,
			Running:   status.Running(),
			StartedAt: status.TimerStartAt,
			Deadline:  status.Deadline(timers.ComplianceWindow),
		}
		if ps.Deadline != nil {
			remaining := ps.Deadline.Sub(now)
			ps.Expired = remaining <= 0
			if remaining > 0 {
				ps.RemainingSec = int64(remaining / time.Second)
			}
		}
		state.Phases = append(state.Phases, ps)
	}

	records, err := s.store.ListPenaltyRecordsByUser(ctx, db.ListPenaltyRecordsByUserParams{
		LeagueID: leagueID,
		UserID:   userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list penalty records: %w", sqlutil.Classify(err))
	}
	for _, r := range records {
		state.Penalties = append(state.Penalties, models.PenaltyRecord{
			ID:                 r.ID,
			ComplianceStatusID: r.ComplianceStatusID,
			LeagueID:           r.LeagueID,
			UserID:             r.UserID,
			Phase:              models.CompliancePhase(r.Phase),
			TimerStartedAt:     r.TimerStartedAt,
			Amount:             r.Amount,
			Shortfall:          r.Shortfall,
			AppliedAt:          r.AppliedAt,
		})
	}

	return state, nil
}
