// Package api exposes the timer engine over connect.
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguetimers/go/internal/auction"
	"github.com/mcdev12/leaguetimers/go/internal/compliance"
	"github.com/mcdev12/leaguetimers/go/internal/models"
	"github.com/mcdev12/leaguetimers/go/internal/responsetimer"
	"github.com/mcdev12/leaguetimers/go/internal/sweep"
)

// SweepRunner runs all three expiry passes
type SweepRunner interface {
	Run(ctx context.Context, now time.Time) (sweep.Result, error)
}

// AuctionApp is what the service needs from the auction scheduler
type AuctionApp interface {
	CloseExpired(ctx context.Context, now time.Time) (auction.CloseResult, error)
	Countdown(ctx context.Context, auctionID uuid.UUID, now time.Time) (*auction.Countdown, error)
}

// ResponseTimerApp is what the service needs from the response timer manager
type ResponseTimerApp interface {
	ProcessExpired(ctx context.Context, now time.Time) (responsetimer.ExpireResult, error)
	Resolve(ctx context.Context, timerID uuid.UUID, outcome models.ResponseStatus, now time.Time) (*models.ResponseTimer, error)
}

// ComplianceApp is what the service needs from the compliance timer service
type ComplianceApp interface {
	ProcessExpiredComplianceTimers(ctx context.Context, now time.Time) (compliance.ProcessResult, error)
	StartTimer(ctx context.Context, leagueID, userID uuid.UUID, phase models.CompliancePhase, now time.Time) (*models.ComplianceStatus, error)
	ClearTimer(ctx context.Context, leagueID, userID uuid.UUID, phase models.CompliancePhase, now time.Time) (bool, error)
	State(ctx context.Context, leagueID, userID uuid.UUID, now time.Time) (*compliance.UserState, error)
}

type Service struct {
	sweep       SweepRunner
	auctions    AuctionApp
	responses   ResponseTimerApp
	compliance  ComplianceApp
	clock       clockwork.Clock
	nowOverride bool
}

type Option func(*Service)

// WithNowOverride lets callers choose the instant a request is evaluated at.
// Off by default; enable for tests and repair tooling only.
func WithNowOverride(allow bool) Option {
	return func(s *Service) {
		s.nowOverride = allow
	}
}

func NewService(s SweepRunner, auctions AuctionApp, responses ResponseTimerApp, c ComplianceApp, clock clockwork.Clock, opts ...Option) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	svc := &Service{
		sweep:      s,
		auctions:   auctions,
		responses:  responses,
		compliance: c,
		clock:      clock,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) now(requested *time.Time) (time.Time, error) {
	if requested == nil {
		return s.clock.Now().UTC(), nil
	}
	if !s.nowOverride {
		return time.Time{}, connect.NewError(connect.CodePermissionDenied, errors.New("now override is disabled on this server"))
	}
	return requested.UTC(), nil
}

func (s *Service) RunSweep(ctx context.Context, req *connect.Request[SweepRequest]) (*connect.Response[RunSweepResponse], error) {
	now, err := s.now(req.Msg.Now)
	if err != nil {
		return nil, err
	}
	res, err := s.sweep.Run(ctx, now)
	if err != nil {
		return nil, withPartialResult(toConnectError(err), res)
	}
	return connect.NewResponse(&res), nil
}

func (s *Service) CloseExpiredAuctions(ctx context.Context, req *connect.Request[SweepRequest]) (*connect.Response[CloseExpiredAuctionsResponse], error) {
	now, err := s.now(req.Msg.Now)
	if err != nil {
		return nil, err
	}
	res, err := s.auctions.CloseExpired(ctx, now)
	if err != nil {
		return nil, withPartialResult(toConnectError(err), res)
	}
	return connect.NewResponse(&res), nil
}

func (s *Service) ExpireResponseTimers(ctx context.Context, req *connect.Request[SweepRequest]) (*connect.Response[ExpireResponseTimersResponse], error) {
	now, err := s.now(req.Msg.Now)
	if err != nil {
		return nil, err
	}
	res, err := s.responses.ProcessExpired(ctx, now)
	if err != nil {
		return nil, withPartialResult(toConnectError(err), res)
	}
	return connect.NewResponse(&res), nil
}

func (s *Service) ProcessExpiredComplianceTimers(ctx context.Context, req *connect.Request[SweepRequest]) (*connect.Response[ProcessExpiredComplianceTimersResponse], error) {
	now, err := s.now(req.Msg.Now)
	if err != nil {
		return nil, err
	}
	res, err := s.compliance.ProcessExpiredComplianceTimers(ctx, now)
	if err != nil {
		return nil, withPartialResult(toConnectError(err), res)
	}
	return connect.NewResponse(&res), nil
}

func (s *Service) ResolveResponseTimer(ctx context.Context, req *connect.Request[ResolveResponseTimerRequest]) (*connect.Response[ResolveResponseTimerResponse], error) {
	if req.Msg.TimerID == uuid.Nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("timer_id is required"))
	}
	switch req.Msg.Outcome {
	case models.ResponseStatusAccepted, models.ResponseStatusDeclined:
	default:
		return nil, connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("outcome must be %q or %q", models.ResponseStatusAccepted, models.ResponseStatusDeclined))
	}

	now, err := s.now(req.Msg.Now)
	if err != nil {
		return nil, err
	}
	timer, err := s.responses.Resolve(ctx, req.Msg.TimerID, req.Msg.Outcome, now)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ResolveResponseTimerResponse{Timer: timer}), nil
}

func (s *Service) StartComplianceTimer(ctx context.Context, req *connect.Request[ComplianceTimerRequest]) (*connect.Response[StartComplianceTimerResponse], error) {
	if err := validateMember(req.Msg.LeagueID, req.Msg.UserID); err != nil {
		return nil, err
	}
	if req.Msg.Phase == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("phase is required"))
	}

	now, err := s.now(req.Msg.Now)
	if err != nil {
		return nil, err
	}
	status, err := s.compliance.StartTimer(ctx, req.Msg.LeagueID, req.Msg.UserID, req.Msg.Phase, now)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&StartComplianceTimerResponse{Status: status}), nil
}

func (s *Service) ClearComplianceTimer(ctx context.Context, req *connect.Request[ComplianceTimerRequest]) (*connect.Response[ClearComplianceTimerResponse], error) {
	if err := validateMember(req.Msg.LeagueID, req.Msg.UserID); err != nil {
		return nil, err
	}
	if req.Msg.Phase == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("phase is required"))
	}

	now, err := s.now(req.Msg.Now)
	if err != nil {
		return nil, err
	}
	cleared, err := s.compliance.ClearTimer(ctx, req.Msg.LeagueID, req.Msg.UserID, req.Msg.Phase, now)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ClearComplianceTimerResponse{Cleared: cleared}), nil
}

func (s *Service) GetAuctionCountdown(ctx context.Context, req *connect.Request[GetAuctionCountdownRequest]) (*connect.Response[AuctionCountdownResponse], error) {
	if req.Msg.AuctionID == uuid.Nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("auction_id is required"))
	}

	now, err := s.now(req.Msg.Now)
	if err != nil {
		return nil, err
	}
	countdown, err := s.auctions.Countdown(ctx, req.Msg.AuctionID, now)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(countdown), nil
}

func (s *Service) GetComplianceState(ctx context.Context, req *connect.Request[GetComplianceStateRequest]) (*connect.Response[ComplianceStateResponse], error) {
	if err := validateMember(req.Msg.LeagueID, req.Msg.UserID); err != nil {
		return nil, err
	}

	now, err := s.now(req.Msg.Now)
	if err != nil {
		return nil, err
	}
	state, err := s.compliance.State(ctx, req.Msg.LeagueID, req.Msg.UserID, now)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(state), nil
}

func validateMember(leagueID, userID uuid.UUID) error {
	if leagueID == uuid.Nil || userID == uuid.Nil {
		return connect.NewError(connect.CodeInvalidArgument, errors.New("league_id and user_id are required"))
	}
	return nil
}

// logErrors is a connect interceptor that logs failed calls
func logErrors() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			resp, err := next(ctx, req)
			if err != nil {
				log.Warn().
					Err(err).
					Str("procedure", req.Spec().Procedure).
					Str("code", connect.CodeOf(err).String()).
					Msg("engine call failed")
			}
			return resp, err
		}
	}
}
