// Package responsetimer owns the confirmation window an auction winner gets after close.
package responsetimer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguetimers/go/internal/compliance"
	"github.com/mcdev12/leaguetimers/go/internal/db"
	"github.com/mcdev12/leaguetimers/go/internal/engineerr"
	"github.com/mcdev12/leaguetimers/go/internal/events"
	"github.com/mcdev12/leaguetimers/go/internal/leagues"
	"github.com/mcdev12/leaguetimers/go/internal/models"
	"github.com/mcdev12/leaguetimers/go/internal/outbox"
	"github.com/mcdev12/leaguetimers/go/internal/sqlutil"
)

const entity = "response timer"

// ExpireResult is the outcome of one response timer sweep
type ExpireResult struct {
	ExpiredCount int                `json:"expiredCount"`
	Violations   []models.Violation `json:"violations"`
	Errors       []string           `json:"errors"`
}

type Manager struct {
	store      db.Store
	compliance *compliance.Service
	leagues    *leagues.Resolver
	batchSize  int32
}

func NewManager(store db.Store, svc *compliance.Service, resolver *leagues.Resolver, batchSize int32) *Manager {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Manager{
		store:      store,
		compliance: svc,
		leagues:    resolver,
		batchSize:  batchSize,
	}
}

// OnAuctionClosed opens the winner's response window. It returns
// engineerr.ErrDuplicateTimer if the auction already has a timer, and a nil
// timer when the auction closed without a winner.
func (m *Manager) OnAuctionClosed(ctx context.Context, closure models.ClosedAuction) (*models.ResponseTimer, error) {
	var timer *models.ResponseTimer
	err := m.store.InTx(ctx, func(q db.Querier) error {
		var err error
		timer, err = m.createTimer(ctx, q, closure)
		return err
	})
	if err != nil {
		return nil, sqlutil.Classify(err)
	}
	return timer, nil
}

// HandleAuctionClosed creates the timer inside the auction scheduler's transaction.
// A timer that already exists is left alone.
func (m *Manager) HandleAuctionClosed(ctx context.Context, q db.Querier, closure models.ClosedAuction) error {
	_, err := m.createTimer(ctx, q, closure)
	if errors.Is(err, engineerr.ErrDuplicateTimer) {
		log.Warn().Str("auction_id", closure.AuctionID.String()).Msg("response timer already exists")
		return nil
	}
	return err
}

func (m *Manager) createTimer(ctx context.Context, q db.Querier, closure models.ClosedAuction) (*models.ResponseTimer, error) {
	if closure.WinnerID == nil {
		log.Info().Str("auction_id", closure.AuctionID.String()).Msg("auction closed without a winner, no response timer")
		return nil, nil
	}

	timers, err := m.leagues.TimerConfig(ctx, q, closure.LeagueID)
	if err != nil {
		return nil, err
	}
	deadline := closure.ClosedAt.Add(timers.ResponseWindow)

	row, err := q.CreateResponseTimer(ctx, db.CreateResponseTimerParams{
		ID:               uuid.New(),
		AuctionID:        closure.AuctionID,
		LeagueID:         closure.LeagueID,
		UserID:           *closure.WinnerID,
		ResponseDeadline: deadline,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("auction %s: %w", closure.AuctionID, engineerr.ErrDuplicateTimer)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create response timer: %w", sqlutil.Classify(err))
	}
	timer, err := toTimer(row)
	if err != nil {
		return nil, err
	}

	if err := outbox.Record(ctx, q, timer.LeagueID, events.TypeResponseTimerCreated, events.ResponseTimerCreatedPayload{
		TimerID:          timer.ID.String(),
		AuctionID:        timer.AuctionID.String(),
		LeagueID:         timer.LeagueID.String(),
		UserID:           timer.UserID.String(),
		ResponseDeadline: timer.ResponseDeadline,
		WindowSec:        int(timers.ResponseWindow / time.Second),
	}); err != nil {
		return nil, err
	}

	log.Info().
		Str("auction_id", timer.AuctionID.String()).
		Str("user_id", timer.UserID.String()).
		Time("deadline", timer.ResponseDeadline).
		Msg("response timer created")
	return timer, nil
}

// ProcessExpired expires every pending timer whose deadline is at or before now and
// starts a "response" compliance countdown for its owner in the same transaction.
func (m *Manager) ProcessExpired(ctx context.Context, now time.Time) (ExpireResult, error) {
	result := ExpireResult{
		Violations: []models.Violation{},
		Errors:     []string{},
	}

	var (
		candidates    int
		afterDeadline time.Time
		afterID       uuid.UUID
	)
	for {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("response timer sweep interrupted: %w", err)
		}
		rows, err := m.store.ListDueResponseTimers(ctx, db.ListDueResponseTimersParams{
			Now:           now,
			AfterDeadline: afterDeadline,
			AfterID:       afterID,
			Limit:         m.batchSize,
		})
		if err != nil {
			return result, fmt.Errorf("failed to list due response timers: %w", sqlutil.Classify(err))
		}
		candidates += len(rows)

		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return result, fmt.Errorf("response timer sweep interrupted: %w", err)
			}
			violation, err := m.expireRow(ctx, row, now)
			if err == nil {
				result.ExpiredCount++
				result.Violations = append(result.Violations, violation)
				continue
			}
			if errors.Is(err, engineerr.ErrConcurrencyConflict) {
				log.Debug().Str("timer_id", row.ID.String()).Msg("response timer already resolved")
				continue
			}

			result.Errors = append(result.Errors, fmt.Sprintf("response timer %s (auction %s): %v", row.ID, row.AuctionID, err))
			if engineerr.IsTransient(err) {
				log.Error().Err(err).Str("timer_id", row.ID.String()).Msg("aborting response timer sweep")
				return result, err
			}
			log.Warn().Err(err).Str("timer_id", row.ID.String()).Msg("response timer not expired")
		}

		if len(rows) < int(m.batchSize) {
			break
		}
		last := rows[len(rows)-1]
		afterDeadline, afterID = last.ResponseDeadline, last.ID
	}

	log.Info().
		Int("candidates", candidates).
		Int("expired", result.ExpiredCount).
		Int("errors", len(result.Errors)).
		Msg("response timer sweep finished")
	return result, nil
}

func (m *Manager) expireRow(ctx context.Context, row db.UserAuctionResponseTimer, now time.Time) (models.Violation, error) {
	timer, err := toTimer(row)
	if err != nil {
		return models.Violation{}, err
	}
	violation := models.Violation{
		LeagueID: timer.LeagueID,
		UserID:   timer.UserID,
		Phase:    models.CompliancePhaseResponse,
	}

	err = m.store.InTx(ctx, func(q db.Querier) error {
		n, err := q.TransitionResponseTimer(ctx, db.TransitionResponseTimerParams{
			ID:         timer.ID,
			FromStatus: string(models.ResponseStatusPending),
			ToStatus:   string(models.ResponseStatusExpired),
			ResolvedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to expire response timer: %w", err)
		}
		if n == 0 {
			return engineerr.ErrConcurrencyConflict
		}

		if _, err := m.compliance.StartTimerTx(ctx, q, violation.LeagueID, violation.UserID, violation.Phase, now,
			fmt.Sprintf("response timer %s expired", timer.ID)); err != nil {
			return err
		}

		return outbox.Record(ctx, q, timer.LeagueID, events.TypeResponseTimerExpired, events.ResponseTimerExpiredPayload{
			TimerID:   timer.ID.String(),
			AuctionID: timer.AuctionID.String(),
			LeagueID:  timer.LeagueID.String(),
			UserID:    timer.UserID.String(),
			ExpiredAt: now,
		})
	})
	if err != nil {
		return models.Violation{}, sqlutil.Classify(err)
	}
	return violation, nil
}

// Resolve records the winner's answer. Only a pending timer can be resolved.
func (m *Manager) Resolve(ctx context.Context, timerID uuid.UUID, outcome models.ResponseStatus, now time.Time) (*models.ResponseTimer, error) {
	if outcome != models.ResponseStatusAccepted && outcome != models.ResponseStatusDeclined {
		return nil, fmt.Errorf("response outcome must be %q or %q, got %q",
			models.ResponseStatusAccepted, models.ResponseStatusDeclined, outcome)
	}

	var timer *models.ResponseTimer
	err := m.store.InTx(ctx, func(q db.Querier) error {
		row, err := q.GetResponseTimer(ctx, timerID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("response timer %s: %w", timerID, engineerr.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get response timer: %w", err)
		}
		current, err := toTimer(row)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return &engineerr.InvalidTransitionError{Entity: entity, From: string(current.Status), To: string(outcome)}
		}

		n, err := q.TransitionResponseTimer(ctx, db.TransitionResponseTimerParams{
			ID:         timerID,
			FromStatus: string(models.ResponseStatusPending),
			ToStatus:   string(outcome),
			ResolvedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to resolve response timer: %w", err)
		}
		if n == 0 {
			return &engineerr.InvalidTransitionError{Entity: entity, From: "unknown", To: string(outcome)}
		}

		current.Status = outcome
		current.ResolvedAt = &now
		timer = current

		return outbox.Record(ctx, q, current.LeagueID, events.TypeResponseTimerResolved, events.ResponseTimerResolvedPayload{
			TimerID:    current.ID.String(),
			AuctionID:  current.AuctionID.String(),
			LeagueID:   current.LeagueID.String(),
			UserID:     current.UserID.String(),
			Outcome:    string(outcome),
			ResolvedAt: now,
		})
	})
	if err != nil {
		return nil, sqlutil.Classify(err)
	}

	log.Info().
		Str("timer_id", timer.ID.String()).
		Str("outcome", string(outcome)).
		Msg("response timer resolved")
	return timer, nil
}

// ByAuction returns the response timer for an auction, or engineerr.ErrNotFound.
func (m *Manager) ByAuction(ctx context.Context, auctionID uuid.UUID) (*models.ResponseTimer, error) {
	row, err := m.store.GetResponseTimerByAuction(ctx, auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("response timer for auction %s: %w", auctionID, engineerr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response timer: %w", sqlutil.Classify(err))
	}
	return toTimer(row)
}

func toTimer(row db.UserAuctionResponseTimer) (*models.ResponseTimer, error) {
	t, err := models.NewResponseTimer(row.ID, row.AuctionID, row.LeagueID, row.UserID,
		row.ResponseDeadline, row.Status, sqlutil.FromSqlTime(row.ResolvedAt))
	if err != nil {
		return nil, engineerr.DataIntegrity("%v", err)
	}
	return t, nil
}
