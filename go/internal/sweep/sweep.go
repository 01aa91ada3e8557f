// Package sweep drives one pass over every deadline the engine owns.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguetimers/go/internal/auction"
	"github.com/mcdev12/leaguetimers/go/internal/compliance"
	"github.com/mcdev12/leaguetimers/go/internal/responsetimer"
)

// AuctionCloser is implemented by *auction.Scheduler
type AuctionCloser interface {
	CloseExpired(ctx context.Context, now time.Time) (auction.CloseResult, error)
}

// ResponseExpirer is implemented by *responsetimer.Manager
type ResponseExpirer interface {
	ProcessExpired(ctx context.Context, now time.Time) (responsetimer.ExpireResult, error)
}

// ComplianceProcessor is implemented by *compliance.Service
type ComplianceProcessor interface {
	ProcessExpiredComplianceTimers(ctx context.Context, now time.Time) (compliance.ProcessResult, error)
}

// Result aggregates the three passes of one sweep
type Result struct {
	Now            time.Time `json:"now"`
	ClosedCount    int       `json:"closedCount"`
	ExpiredCount   int       `json:"expiredCount"`
	ProcessedCount int       `json:"processedCount"`
	Errors         []string  `json:"errors"`
}

type Sweep struct {
	auctions   AuctionCloser
	responses  ResponseExpirer
	compliance ComplianceProcessor
}

func New(auctions AuctionCloser, responses ResponseExpirer, compliance ComplianceProcessor) *Sweep {
	return &Sweep{
		auctions:   auctions,
		responses:  responses,
		compliance: compliance,
	}
}

// Run closes due auctions, then expires response timers, then penalizes expired
// compliance timers. A pass that fails outright stops the sweep; the result still
// carries the counts and row errors gathered so far.
func (s *Sweep) Run(ctx context.Context, now time.Time) (Result, error) {
	res := Result{Now: now, Errors: []string{}}

	closed, err := s.auctions.CloseExpired(ctx, now)
	res.ClosedCount = closed.ClosedCount
	res.Errors = append(res.Errors, closed.Errors...)
	if err != nil {
		return res, fmt.Errorf("close expired auctions: %w", err)
	}

	expired, err := s.responses.ProcessExpired(ctx, now)
	res.ExpiredCount = expired.ExpiredCount
	res.Errors = append(res.Errors, expired.Errors...)
	if err != nil {
		return res, fmt.Errorf("expire response timers: %w", err)
	}

	processed, err := s.compliance.ProcessExpiredComplianceTimers(ctx, now)
	res.ProcessedCount = processed.ProcessedCount
	res.Errors = append(res.Errors, processed.Errors...)
	if err != nil {
		return res, fmt.Errorf("process expired compliance timers: %w", err)
	}

	log.Info().
		Time("now", now).
		Int("closed", res.ClosedCount).
		Int("expired", res.ExpiredCount).
		Int("processed", res.ProcessedCount).
		Int("errors", len(res.Errors)).
		Msg("sweep finished")
	return res, nil
}
