// Package compliance owns compliance countdowns and the penalty sweep over them.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/leaguetimers/go/internal/db"
	"github.com/mcdev12/leaguetimers/go/internal/engineerr"
	"github.com/mcdev12/leaguetimers/go/internal/events"
	"github.com/mcdev12/leaguetimers/go/internal/leagues"
	"github.com/mcdev12/leaguetimers/go/internal/ledger"
	"github.com/mcdev12/leaguetimers/go/internal/models"
	"github.com/mcdev12/leaguetimers/go/internal/outbox"
	"github.com/mcdev12/leaguetimers/go/internal/sqlutil"
)

// ProcessResult is the outcome of one penalty sweep
type ProcessResult struct {
	ProcessedCount int      `json:"processedCount"`
	Errors         []string `json:"errors"`
}

type Service struct {
	store     db.Store
	ledger    *ledger.Ledger
	leagues   *leagues.Resolver
	policy    PenaltyPolicy
	batchSize int32
}

func NewService(store db.Store, l *ledger.Ledger, resolver *leagues.Resolver, policy PenaltyPolicy, batchSize int32) *Service {
	if policy == nil {
		policy = FlatPolicy{}
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Service{
		store:     store,
		ledger:    l,
		leagues:   resolver,
		policy:    policy,
		batchSize: batchSize,
	}
}

// StartTimer starts the (league, user, phase) countdown at now. A running countdown
// keeps its original start.
func (s *Service) StartTimer(ctx context.Context, leagueID, userID uuid.UUID, phase models.CompliancePhase, now time.Time) (*models.ComplianceStatus, error) {
	var status *models.ComplianceStatus
	err := s.store.InTx(ctx, func(q db.Querier) error {
		var err error
		status, err = s.StartTimerTx(ctx, q, leagueID, userID, phase, now, "")
		return err
	})
	if err != nil {
		return nil, sqlutil.Classify(err)
	}
	return status, nil
}

// StartTimerTx is StartTimer inside the caller's transaction.
func (s *Service) StartTimerTx(ctx context.Context, q db.Querier, leagueID, userID uuid.UUID, phase models.CompliancePhase, now time.Time, reason string) (*models.ComplianceStatus, error) {
	if phase == "" {
		return nil, fmt.Errorf("compliance phase cannot be empty")
	}

	existing, err := q.GetComplianceStatus(ctx, db.GetComplianceStatusParams{
		LeagueID: leagueID,
		UserID:   userID,
		Phase:    string(phase),
	})
	switch {
	case err == nil && existing.ComplianceTimerStartAt.Valid:
		return toStatus(existing)
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to get compliance status: %w", sqlutil.Classify(err))
	}

	row, err := q.StartComplianceTimer(ctx, db.StartComplianceTimerParams{
		ID:       uuid.New(),
		LeagueID: leagueID,
		UserID:   userID,
		Phase:    string(phase),
		StartAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start compliance timer: %w", sqlutil.Classify(err))
	}
	status, err := toStatus(row)
	if err != nil {
		return nil, err
	}

	if err := outbox.Record(ctx, q, leagueID, events.TypeComplianceTimerStarted, events.ComplianceTimerStartedPayload{
		StatusID:  status.ID.String(),
		LeagueID:  leagueID.String(),
		UserID:    userID.String(),
		Phase:     string(phase),
		StartedAt: *status.TimerStartAt,
		Reason:    reason,
	}); err != nil {
		return nil, err
	}

	log.Info().
		Str("league_id", leagueID.String()).
		Str("user_id", userID.String()).
		Str("phase", string(phase)).
		Time("started_at", *status.TimerStartAt).
		Msg("compliance timer started")
	return status, nil
}

// ClearTimer returns the participant to compliant. It reports whether a running
// countdown was cleared.
func (s *Service) ClearTimer(ctx context.Context, leagueID, userID uuid.UUID, phase models.CompliancePhase, now time.Time) (bool, error) {
	var cleared bool
	err := s.store.InTx(ctx, func(q db.Querier) error {
		n, err := q.ClearComplianceTimer(ctx, db.ClearComplianceTimerParams{
			LeagueID: leagueID,
			UserID:   userID,
			Phase:    string(phase),
		})
		if err != nil {
			return fmt.Errorf("failed to clear compliance timer: %w", err)
		}
		if n == 0 {
			return nil
		}
		cleared = true
		return outbox.Record(ctx, q, leagueID, events.TypeComplianceTimerCleared, events.ComplianceTimerClearedPayload{
			LeagueID:  leagueID.String(),
			UserID:    userID.String(),
			Phase:     string(phase),
			ClearedAt: now,
		})
	})
	if err != nil {
		return false, sqlutil.Classify(err)
	}
	if cleared {
		log.Info().
			Str("league_id", leagueID.String()).
			Str("user_id", userID.String()).
			Str("phase", string(phase)).
			Msg("compliance timer cleared")
	}
	return cleared, nil
}

// ProcessExpiredComplianceTimers penalizes every running countdown whose window has
// elapsed at now. Running timers are paged in start order so rows that keep failing
// never hide newer ones. Each row is claimed and penalized in its own transaction, so
// concurrent sweeps apply at most one penalty per timer generation. Row failures are
// collected in the result; a transient storage failure or a cancelled context stops the
// batch and is returned alongside the partial result.
func (s *Service) ProcessExpiredComplianceTimers(ctx context.Context, now time.Time) (ProcessResult, error) {
	result := ProcessResult{Errors: []string{}}

	var (
		candidates   int
		afterStartAt time.Time
		afterID      uuid.UUID
	)
	for {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("compliance sweep interrupted: %w", err)
		}
		rows, err := s.store.ListRunningComplianceTimers(ctx, db.ListRunningComplianceTimersParams{
			Now:          now,
			AfterStartAt: afterStartAt,
			AfterID:      afterID,
			Limit:        s.batchSize,
		})
		if err != nil {
			return result, fmt.Errorf("failed to list running compliance timers: %w", sqlutil.Classify(err))
		}

		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return result, fmt.Errorf("compliance sweep interrupted: %w", err)
			}

			// a league with unreadable settings is judged against the default window
			timers, settingsErr := s.leagues.FromSettings(row.LeagueID, row.LeagueSettings.RawMessage)
			if row.ComplianceTimerStartAt.Time.Add(timers.ComplianceWindow).After(now) {
				continue
			}
			candidates++

			var processed bool
			err := settingsErr
			if err == nil {
				processed, err = s.processRow(ctx, row, now)
			}
			if processed {
				result.ProcessedCount++
			}
			if err == nil {
				continue
			}
			if errors.Is(err, engineerr.ErrConcurrencyConflict) {
				log.Debug().Str("status_id", row.ID.String()).Msg("compliance timer already claimed")
				continue
			}

			msg := fmt.Sprintf("compliance status %s (league %s, user %s, phase %s): %v",
				row.ID, row.LeagueID, row.UserID, row.Phase, err)
			result.Errors = append(result.Errors, msg)

			if engineerr.IsTransient(err) {
				log.Error().Err(err).Str("status_id", row.ID.String()).Msg("aborting compliance sweep")
				return result, err
			}
			log.Warn().Err(err).Str("status_id", row.ID.String()).Msg("compliance timer not fully processed")
		}

		if len(rows) < int(s.batchSize) {
			break
		}
		last := rows[len(rows)-1]
		afterStartAt, afterID = last.ComplianceTimerStartAt.Time, last.ID
	}

	log.Info().
		Int("candidates", candidates).
		Int("processed", result.ProcessedCount).
		Int("errors", len(result.Errors)).
		Msg("compliance sweep finished")
	return result, nil
}

// processRow reports processed=true when the penalty was applied and committed. An
// insufficient-funds shortfall under the clip policy is committed and returned as err.
func (s *Service) processRow(ctx context.Context, row db.ListRunningComplianceTimersRow, now time.Time) (bool, error) {
	status, err := models.NewComplianceStatus(row.ID, row.LeagueID, row.UserID, row.Phase, sqlutil.FromSqlTime(row.ComplianceTimerStartAt))
	if err != nil {
		return false, engineerr.DataIntegrity("%v", err)
	}
	if !status.Running() {
		return false, engineerr.DataIntegrity("compliance status %s listed as running without a start", row.ID)
	}
	startedAt := *status.TimerStartAt

	var (
		processed bool
		fundsErr  error
	)
	err = s.store.InTx(ctx, func(q db.Querier) error {
		timers, err := s.leagues.TimerConfig(ctx, q, status.LeagueID)
		if err != nil {
			return err
		}
		prior, err := q.CountPenaltyRecords(ctx, db.CountPenaltyRecordsParams{
			LeagueID: status.LeagueID,
			UserID:   status.UserID,
			Phase:    string(status.Phase),
		})
		if err != nil {
			return fmt.Errorf("failed to count penalty records: %w", err)
		}
		decision, err := s.policy.Decide(ctx, PenaltyInput{
			Status:        *status,
			Timers:        timers,
			PriorOffences: prior,
			Now:           now,
		})
		if err != nil {
			return fmt.Errorf("penalty policy %s: %w", s.policy.Name(), err)
		}

		n, err := q.ClaimComplianceTimer(ctx, db.ClaimComplianceTimerParams{
			ID:              status.ID,
			ExpectedStartAt: startedAt,
			NextStartAt:     sqlutil.ToSqlTime(decision.NextStartAt),
		})
		if err != nil {
			return fmt.Errorf("failed to claim compliance timer: %w", err)
		}
		if n == 0 {
			return engineerr.ErrConcurrencyConflict
		}

		details, err := json.Marshal(penaltyDetails{
			Policy:        s.policy.Name(),
			WindowSec:     int32(timers.ComplianceWindow / time.Second),
			PriorOffences: prior,
			Escalated:     decision.Escalated,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal penalty details: %w", err)
		}
		record, err := q.InsertPenaltyRecord(ctx, db.InsertPenaltyRecordParams{
			ID:                 uuid.New(),
			ComplianceStatusID: status.ID,
			LeagueID:           status.LeagueID,
			UserID:             status.UserID,
			Phase:              string(status.Phase),
			TimerStartedAt:     startedAt,
			Amount:             decision.Amount,
			Shortfall:          decimal.Zero,
			AppliedAt:          now,
			Details:            pqtype.NullRawMessage{RawMessage: details, Valid: true},
		})
		if errors.Is(err, sql.ErrNoRows) {
			// a previous run committed the penalty for this generation
			log.Warn().
				Str("status_id", status.ID.String()).
				Time("timer_started_at", startedAt).
				Msg("penalty already recorded, skipping ledger")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to insert penalty record: %w", err)
		}

		outcome, err := s.ledger.ApplyPenalty(ctx, q, status.LeagueID, status.UserID, decision.Amount)
		switch {
		case errors.Is(err, engineerr.ErrInsufficientFunds) && s.ledger.Policy() == ledger.FundsPolicyClip:
			fundsErr = err
			if err := s.recordShortfall(ctx, q, record.ID, details, outcome); err != nil {
				return err
			}
		case err != nil:
			return err
		}

		if err := outbox.Record(ctx, q, status.LeagueID, events.TypePenaltyApplied, events.PenaltyAppliedPayload{
			PenaltyID:      record.ID.String(),
			StatusID:       status.ID.String(),
			LeagueID:       status.LeagueID.String(),
			UserID:         status.UserID.String(),
			Phase:          string(status.Phase),
			TimerStartedAt: startedAt,
			Amount:         outcome.Applied.String(),
			Shortfall:      outcome.Shortfall.String(),
			Escalated:      decision.Escalated,
			AppliedAt:      now,
		}); err != nil {
			return err
		}

		log.Info().
			Str("league_id", status.LeagueID.String()).
			Str("user_id", status.UserID.String()).
			Str("phase", string(status.Phase)).
			Str("amount", decision.Amount.String()).
			Str("shortfall", outcome.Shortfall.String()).
			Bool("restarted", decision.NextStartAt != nil).
			Msg("compliance penalty applied")
		processed = true
		return nil
	})
	if err != nil {
		return false, sqlutil.Classify(err)
	}
	return processed, fundsErr
}

type penaltyDetails struct {
	Policy        string `json:"policy"`
	WindowSec     int32  `json:"window_sec"`
	PriorOffences int64  `json:"prior_offences"`
	Escalated     bool   `json:"escalated"`
	Applied       string `json:"applied,omitempty"`
}

func (s *Service) recordShortfall(ctx context.Context, q db.Querier, recordID uuid.UUID, details []byte, outcome ledger.Outcome) error {
	var d penaltyDetails
	if err := json.Unmarshal(details, &d); err != nil {
		return fmt.Errorf("failed to unmarshal penalty details: %w", err)
	}
	d.Applied = outcome.Applied.String()
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal penalty details: %w", err)
	}
	if err := q.UpdatePenaltyShortfall(ctx, db.UpdatePenaltyShortfallParams{
		ID:        recordID,
		Shortfall: outcome.Shortfall,
		Details:   pqtype.NullRawMessage{RawMessage: raw, Valid: true},
	}); err != nil {
		return fmt.Errorf("failed to record penalty shortfall: %w", err)
	}
	return nil
}

func toStatus(row db.UserLeagueComplianceStatus) (*models.ComplianceStatus, error) {
	status, err := models.NewComplianceStatus(row.ID, row.LeagueID, row.UserID, row.Phase, sqlutil.FromSqlTime(row.ComplianceTimerStartAt))
	if err != nil {
		return nil, engineerr.DataIntegrity("%v", err)
	}
	return status, nil
}
