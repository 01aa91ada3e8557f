// Package auction closes auctions whose scheduled end has passed.
package auction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguetimers/go/internal/db"
	"github.com/mcdev12/leaguetimers/go/internal/engineerr"
	"github.com/mcdev12/leaguetimers/go/internal/events"
	"github.com/mcdev12/leaguetimers/go/internal/models"
	"github.com/mcdev12/leaguetimers/go/internal/outbox"
	"github.com/mcdev12/leaguetimers/go/internal/sqlutil"
)

// BidResolver finds the winning bidder of an auction. A nil winner means no bids.
type BidResolver interface {
	Winner(ctx context.Context, q db.Querier, auctionID uuid.UUID) (*uuid.UUID, error)
}

// ClosureHandler is told about every closed auction inside the closing transaction.
type ClosureHandler interface {
	HandleAuctionClosed(ctx context.Context, q db.Querier, closure models.ClosedAuction) error
}

// HighestBidResolver picks the highest bid, earliest bid first on ties.
type HighestBidResolver struct{}

func (HighestBidResolver) Winner(ctx context.Context, q db.Querier, auctionID uuid.UUID) (*uuid.UUID, error) {
	bid, err := q.GetWinningBid(ctx, auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get winning bid: %w", err)
	}
	return &bid.UserID, nil
}

// CloseResult is the outcome of one auction sweep
type CloseResult struct {
	ClosedCount int                    `json:"closedCount"`
	Closed      []models.ClosedAuction `json:"closed"`
	Errors      []string               `json:"errors"`
}

type Scheduler struct {
	store     db.Store
	bids      BidResolver
	handler   ClosureHandler
	batchSize int32
}

func NewScheduler(store db.Store, bids BidResolver, handler ClosureHandler, batchSize int32) *Scheduler {
	if bids == nil {
		bids = HighestBidResolver{}
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Scheduler{
		store:     store,
		bids:      bids,
		handler:   handler,
		batchSize: batchSize,
	}
}

// CloseExpired closes every active auction whose scheduled end is at or before now,
// paging through due auctions oldest first. An auction closed by a concurrent sweep
// is skipped.
func (s *Scheduler) CloseExpired(ctx context.Context, now time.Time) (CloseResult, error) {
	result := CloseResult{
		Closed: []models.ClosedAuction{},
		Errors: []string{},
	}

	var (
		candidates int
		afterEndAt time.Time
		afterID    uuid.UUID
	)
	for {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("auction sweep interrupted: %w", err)
		}
		rows, err := s.store.ListDueAuctions(ctx, db.ListDueAuctionsParams{
			Now:        now,
			AfterEndAt: afterEndAt,
			AfterID:    afterID,
			Limit:      s.batchSize,
		})
		if err != nil {
			return result, fmt.Errorf("failed to list due auctions: %w", sqlutil.Classify(err))
		}
		candidates += len(rows)

		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return result, fmt.Errorf("auction sweep interrupted: %w", err)
			}
			closure, err := s.closeRow(ctx, row, now)
			if err == nil {
				result.ClosedCount++
				result.Closed = append(result.Closed, closure)
				continue
			}
			if errors.Is(err, engineerr.ErrConcurrencyConflict) {
				log.Debug().Str("auction_id", row.ID.String()).Msg("auction already closed")
				continue
			}

			result.Errors = append(result.Errors, fmt.Sprintf("auction %s (league %s): %v", row.ID, row.LeagueID, err))
			if engineerr.IsTransient(err) {
				log.Error().Err(err).Str("auction_id", row.ID.String()).Msg("aborting auction sweep")
				return result, err
			}
			log.Warn().Err(err).Str("auction_id", row.ID.String()).Msg("auction not closed")
		}

		if len(rows) < int(s.batchSize) {
			break
		}
		last := rows[len(rows)-1]
		afterEndAt, afterID = last.ScheduledEndTime, last.ID
	}

	log.Info().
		Int("candidates", candidates).
		Int("closed", result.ClosedCount).
		Int("errors", len(result.Errors)).
		Msg("auction sweep finished")
	return result, nil
}

func (s *Scheduler) closeRow(ctx context.Context, row db.Auction, now time.Time) (models.ClosedAuction, error) {
	a, err := toAuction(row)
	if err != nil {
		return models.ClosedAuction{}, err
	}

	closure := models.ClosedAuction{
		AuctionID: a.ID,
		LeagueID:  a.LeagueID,
		PlayerID:  a.PlayerID,
		ClosedAt:  now,
	}
	err = s.store.InTx(ctx, func(q db.Querier) error {
		n, err := q.CloseAuction(ctx, db.CloseAuctionParams{ID: a.ID, ClosedAt: now})
		if err != nil {
			return fmt.Errorf("failed to close auction: %w", err)
		}
		if n == 0 {
			return engineerr.ErrConcurrencyConflict
		}

		closure.WinnerID, err = s.bids.Winner(ctx, q, a.ID)
		if err != nil {
			return err
		}

		payload := events.AuctionClosedPayload{
			AuctionID: a.ID.String(),
			LeagueID:  a.LeagueID.String(),
			PlayerID:  a.PlayerID.String(),
			ClosedAt:  now,
		}
		if closure.WinnerID != nil {
			payload.WinnerID = closure.WinnerID.String()
		}
		if err := outbox.Record(ctx, q, a.LeagueID, events.TypeAuctionClosed, payload); err != nil {
			return err
		}

		if s.handler != nil {
			return s.handler.HandleAuctionClosed(ctx, q, closure)
		}
		return nil
	})
	if err != nil {
		return models.ClosedAuction{}, sqlutil.Classify(err)
	}

	log.Info().
		Str("auction_id", a.ID.String()).
		Str("league_id", a.LeagueID.String()).
		Bool("has_winner", closure.WinnerID != nil).
		Msg("auction closed")
	return closure, nil
}

func toAuction(row db.Auction) (*models.Auction, error) {
	a, err := models.NewAuction(row.ID, row.LeagueID, row.PlayerID, row.Status, row.ScheduledEndTime, sqlutil.FromSqlTime(row.ClosedAt))
	if err != nil {
		return nil, engineerr.DataIntegrity("%v", err)
	}
	return a, nil
}
