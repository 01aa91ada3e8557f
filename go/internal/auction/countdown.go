package auction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/leaguetimers/go/internal/engineerr"
	"github.com/mcdev12/leaguetimers/go/internal/models"
	"github.com/mcdev12/leaguetimers/go/internal/sqlutil"
)

// Countdown is the read-only timing view of one auction
type Countdown struct {
	AuctionID        uuid.UUID             `json:"auction_id"`
	LeagueID         uuid.UUID             `json:"league_id"`
	Status           models.AuctionStatus  `json:"status"`
	ScheduledEndTime time.Time             `json:"scheduled_end_time"`
	ClosedAt         *time.Time            `json:"closed_at,omitempty"`
	RemainingSec     int64                 `json:"remaining_sec"`
	Overdue          bool                  `json:"overdue"`
	Response         *models.ResponseTimer `json:"response,omitempty"`
	ResponseLeftSec  int64                 `json:"response_left_sec"`
}

// Countdown reports time left until the scheduled end, or for a closed auction the
// time left in the winner's response window.
func (s *Scheduler) Countdown(ctx context.Context, auctionID uuid.UUID, now time.Time) (*Countdown, error) {
	row, err := s.store.GetAuction(ctx, auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("auction %s: %w", auctionID, engineerr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auction: %w", sqlutil.Classify(err))
	}
	a, err := toAuction(row)
	if err != nil {
		return nil, err
	}

	c := &Countdown{
		AuctionID:        a.ID,
		LeagueID:         a.LeagueID,
		Status:           a.Status,
		ScheduledEndTime: a.ScheduledEndTime,
		ClosedAt:         a.ClosedAt,
	}
	if a.Status == models.AuctionStatusActive {
		c.RemainingSec = secondsUntil(a.ScheduledEndTime, now)
		c.Overdue = !now.Before(a.ScheduledEndTime)
		return c, nil
	}

	timerRow, err := s.store.GetResponseTimerByAuction(ctx, a.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response timer: %w", sqlutil.Classify(err))
	}
	timer, err := models.NewResponseTimer(timerRow.ID, timerRow.AuctionID, timerRow.LeagueID, timerRow.UserID,
		timerRow.ResponseDeadline, timerRow.Status, sqlutil.FromSqlTime(timerRow.ResolvedAt))
	if err != nil {
		return nil, engineerr.DataIntegrity("%v", err)
	}
	c.Response = timer
	if timer.Status == models.ResponseStatusPending {
		c.ResponseLeftSec = secondsUntil(timer.ResponseDeadline, now)
	}
	return c, nil
}

func secondsUntil(deadline, now time.Time) int64 {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}
