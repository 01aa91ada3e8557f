package api

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a remote engine.
type Client struct {
	runSweep          *connect.Client[SweepRequest, RunSweepResponse]
	closeExpired      *connect.Client[SweepRequest, CloseExpiredAuctionsResponse]
	expireResponses   *connect.Client[SweepRequest, ExpireResponseTimersResponse]
	processCompliance *connect.Client[SweepRequest, ProcessExpiredComplianceTimersResponse]
	resolveResponse   *connect.Client[ResolveResponseTimerRequest, ResolveResponseTimerResponse]
	startCompliance   *connect.Client[ComplianceTimerRequest, StartComplianceTimerResponse]
	clearCompliance   *connect.Client[ComplianceTimerRequest, ClearComplianceTimerResponse]
	auctionCountdown  *connect.Client[GetAuctionCountdownRequest, AuctionCountdownResponse]
	complianceState   *connect.Client[GetComplianceStateRequest, ComplianceStateResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &Client{
		runSweep:          connect.NewClient[SweepRequest, RunSweepResponse](httpClient, baseURL+RunSweepProcedure, opts...),
		closeExpired:      connect.NewClient[SweepRequest, CloseExpiredAuctionsResponse](httpClient, baseURL+CloseExpiredAuctionsProcedure, opts...),
		expireResponses:   connect.NewClient[SweepRequest, ExpireResponseTimersResponse](httpClient, baseURL+ExpireResponseTimersProcedure, opts...),
		processCompliance: connect.NewClient[SweepRequest, ProcessExpiredComplianceTimersResponse](httpClient, baseURL+ProcessExpiredComplianceTimersProcedure, opts...),
		resolveResponse:   connect.NewClient[ResolveResponseTimerRequest, ResolveResponseTimerResponse](httpClient, baseURL+ResolveResponseTimerProcedure, opts...),
		startCompliance:   connect.NewClient[ComplianceTimerRequest, StartComplianceTimerResponse](httpClient, baseURL+StartComplianceTimerProcedure, opts...),
		clearCompliance:   connect.NewClient[ComplianceTimerRequest, ClearComplianceTimerResponse](httpClient, baseURL+ClearComplianceTimerProcedure, opts...),
		auctionCountdown:  connect.NewClient[GetAuctionCountdownRequest, AuctionCountdownResponse](httpClient, baseURL+GetAuctionCountdownProcedure, opts...),
		complianceState:   connect.NewClient[GetComplianceStateRequest, ComplianceStateResponse](httpClient, baseURL+GetComplianceStateProcedure, opts...),
	}
}

func (c *Client) RunSweep(ctx context.Context, req *SweepRequest) (*RunSweepResponse, error) {
	return unwrap(c.runSweep.CallUnary(ctx, connect.NewRequest(req)))
}

func (c *Client) CloseExpiredAuctions(ctx context.Context, req *SweepRequest) (*CloseExpiredAuctionsResponse, error) {
	return unwrap(c.closeExpired.CallUnary(ctx, connect.NewRequest(req)))
}

func (c *Client) ExpireResponseTimers(ctx context.Context, req *SweepRequest) (*ExpireResponseTimersResponse, error) {
	return unwrap(c.expireResponses.CallUnary(ctx, connect.NewRequest(req)))
}

func (c *Client) ProcessExpiredComplianceTimers(ctx context.Context, req *SweepRequest) (*ProcessExpiredComplianceTimersResponse, error) {
	return unwrap(c.processCompliance.CallUnary(ctx, connect.NewRequest(req)))
}

func (c *Client) ResolveResponseTimer(ctx context.Context, req *ResolveResponseTimerRequest) (*ResolveResponseTimerResponse, error) {
	return unwrap(c.resolveResponse.CallUnary(ctx, connect.NewRequest(req)))
}

func (c *Client) StartComplianceTimer(ctx context.Context, req *ComplianceTimerRequest) (*StartComplianceTimerResponse, error) {
	return unwrap(c.startCompliance.CallUnary(ctx, connect.NewRequest(req)))
}

func (c *Client) ClearComplianceTimer(ctx context.Context, req *ComplianceTimerRequest) (*ClearComplianceTimerResponse, error) {
	return unwrap(c.clearCompliance.CallUnary(ctx, connect.NewRequest(req)))
}

func (c *Client) GetAuctionCountdown(ctx context.Context, req *GetAuctionCountdownRequest) (*AuctionCountdownResponse, error) {
	return unwrap(c.auctionCountdown.CallUnary(ctx, connect.NewRequest(req)))
}

func (c *Client) GetComplianceState(ctx context.Context, req *GetComplianceStateRequest) (*ComplianceStateResponse, error) {
	return unwrap(c.complianceState.CallUnary(ctx, connect.NewRequest(req)))
}

func unwrap[T any](resp *connect.Response[T], err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
