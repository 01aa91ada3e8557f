package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/leaguetimers/go/internal/auction"
	"github.com/mcdev12/leaguetimers/go/internal/compliance"
	"github.com/mcdev12/leaguetimers/go/internal/models"
	"github.com/mcdev12/leaguetimers/go/internal/responsetimer"
	"github.com/mcdev12/leaguetimers/go/internal/sweep"
)

const ServiceName = "leaguetimers.engine.v1.EngineService"

const (
	RunSweepProcedure                       = "/" + ServiceName + "/RunSweep"
	CloseExpiredAuctionsProcedure           = "/" + ServiceName + "/CloseExpiredAuctions"
	ExpireResponseTimersProcedure           = "/" + ServiceName + "/ExpireResponseTimers"
	ProcessExpiredComplianceTimersProcedure = "/" + ServiceName + "/ProcessExpiredComplianceTimers"
	ResolveResponseTimerProcedure           = "/" + ServiceName + "/ResolveResponseTimer"
	StartComplianceTimerProcedure           = "/" + ServiceName + "/StartComplianceTimer"
	ClearComplianceTimerProcedure           = "/" + ServiceName + "/ClearComplianceTimer"
	GetAuctionCountdownProcedure            = "/" + ServiceName + "/GetAuctionCountdown"
	GetComplianceStateProcedure             = "/" + ServiceName + "/GetComplianceState"
)

// SweepRequest drives one pass. A nil Now uses the server clock.
type SweepRequest struct {
	Now *time.Time `json:"now,omitempty"`
}

type (
	RunSweepResponse                       = sweep.Result
	CloseExpiredAuctionsResponse           = auction.CloseResult
	ExpireResponseTimersResponse           = responsetimer.ExpireResult
	ProcessExpiredComplianceTimersResponse = compliance.ProcessResult
	AuctionCountdownResponse               = auction.Countdown
	ComplianceStateResponse                = compliance.UserState
)

type ResolveResponseTimerRequest struct {
	TimerID uuid.UUID             `json:"timer_id"`
	Outcome models.ResponseStatus `json:"outcome"`
	Now     *time.Time            `json:"now,omitempty"`
}

type ResolveResponseTimerResponse struct {
	Timer *models.ResponseTimer `json:"timer"`
}

type ComplianceTimerRequest struct {
	LeagueID uuid.UUID              `json:"league_id"`
	UserID   uuid.UUID              `json:"user_id"`
	Phase    models.CompliancePhase `json:"phase"`
	Now      *time.Time             `json:"now,omitempty"`
}

type StartComplianceTimerResponse struct {
	Status *models.ComplianceStatus `json:"status"`
}

type ClearComplianceTimerResponse struct {
	Cleared bool `json:"cleared"`
}

type GetAuctionCountdownRequest struct {
	AuctionID uuid.UUID  `json:"auction_id"`
	Now       *time.Time `json:"now,omitempty"`
}

type GetComplianceStateRequest struct {
	LeagueID uuid.UUID  `json:"league_id"`
	UserID   uuid.UUID  `json:"user_id"`
	Now      *time.Time `json:"now,omitempty"`
}
