package db

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

type Querier interface {
	ClaimComplianceTimer(ctx context.Context, arg ClaimComplianceTimerParams) (int64, error)
	ClearComplianceTimer(ctx context.Context, arg ClearComplianceTimerParams) (int64, error)
	CloseAuction(ctx context.Context, arg CloseAuctionParams) (int64, error)
	CountPenaltyRecords(ctx context.Context, arg CountPenaltyRecordsParams) (int64, error)
	CountUnsentOutbox(ctx context.Context) (int64, error)
	CreateResponseTimer(ctx context.Context, arg CreateResponseTimerParams) (UserAuctionResponseTimer, error)
	FetchUnsentOutbox(ctx context.Context, limit int32) ([]EngineOutbox, error)
	GetAuction(ctx context.Context, id uuid.UUID) (Auction, error)
	GetComplianceStatus(ctx context.Context, arg GetComplianceStatusParams) (UserLeagueComplianceStatus, error)
	GetLeagueSettings(ctx context.Context, id uuid.UUID) (json.RawMessage, error)
	GetParticipant(ctx context.Context, arg GetParticipantParams) (LeagueParticipant, error)
	GetParticipantForUpdate(ctx context.Context, arg GetParticipantParams) (LeagueParticipant, error)
	GetResponseTimer(ctx context.Context, id uuid.UUID) (UserAuctionResponseTimer, error)
	GetResponseTimerByAuction(ctx context.Context, auctionID uuid.UUID) (UserAuctionResponseTimer, error)
	GetWinningBid(ctx context.Context, auctionID uuid.UUID) (AuctionBid, error)
	InsertOutboxEvent(ctx context.Context, arg InsertOutboxEventParams) error
	InsertPenaltyRecord(ctx context.Context, arg InsertPenaltyRecordParams) (PenaltyRecord, error)
	ListComplianceStatusesByUser(ctx context.Context, arg ListComplianceStatusesByUserParams) ([]UserLeagueComplianceStatus, error)
	ListDueAuctions(ctx context.Context, arg ListDueAuctionsParams) ([]Auction, error)
	ListDueResponseTimers(ctx context.Context, arg ListDueResponseTimersParams) ([]UserAuctionResponseTimer, error)
	ListRunningComplianceTimers(ctx context.Context, arg ListRunningComplianceTimersParams) ([]ListRunningComplianceTimersRow, error)
	ListPenaltyRecordsByUser(ctx context.Context, arg ListPenaltyRecordsByUserParams) ([]PenaltyRecord, error)
	MarkOutboxSent(ctx context.Context, arg MarkOutboxSentParams) error
	StartComplianceTimer(ctx context.Context, arg StartComplianceTimerParams) (UserLeagueComplianceStatus, error)
	TransitionResponseTimer(ctx context.Context, arg TransitionResponseTimerParams) (int64, error)
	UpdateParticipantBalance(ctx context.Context, arg UpdateParticipantBalanceParams) (int64, error)
	UpdatePenaltyShortfall(ctx context.Context, arg UpdatePenaltyShortfallParams) error
}

var _ Querier = (*Queries)(nil)
