package memdb

import (
	"bytes"
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/leaguetimers/go/internal/db"
	"github.com/mcdev12/leaguetimers/go/internal/models"
)

// querier runs queries against the DB state. Outside a transaction every call
// takes the DB lock; inside InTx the lock is already held.
type querier struct {
	d  *DB
	tx bool
}

func (q *querier) enter(ctx context.Context, method string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !q.tx {
		q.d.mu.Lock()
	}
	release := func() {
		if !q.tx {
			q.d.mu.Unlock()
		}
	}
	if err := q.d.popFault(method); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

func (q *querier) s() *state { return q.d.state }

func limit[T any](items []T, n int32) []T {
	if n >= 0 && len(items) > int(n) {
		return items[:n]
	}
	return items
}

// compareKey orders (time, id) keyset pairs the way Postgres compares row values.
func compareKey(at time.Time, aid uuid.UUID, bt time.Time, bid uuid.UUID) int {
	if c := at.Compare(bt); c != 0 {
		return c
	}
	return bytes.Compare(aid[:], bid[:])
}

// Auctions

func (q *querier) CloseAuction(ctx context.Context, arg db.CloseAuctionParams) (int64, error) {
	release, err := q.enter(ctx, "CloseAuction")
	if err != nil {
		return 0, err
	}
	defer release()

	a, ok := q.s().auctions[arg.ID]
	if !ok || a.Status != string(models.AuctionStatusActive) {
		return 0, nil
	}
	a.Status = string(models.AuctionStatusClosed)
	a.ClosedAt = sql.NullTime{Time: arg.ClosedAt, Valid: true}
	q.s().auctions[arg.ID] = a
	return 1, nil
}

func (q *querier) GetAuction(ctx context.Context, id uuid.UUID) (db.Auction, error) {
	release, err := q.enter(ctx, "GetAuction")
	if err != nil {
		return db.Auction{}, err
	}
	defer release()

	a, ok := q.s().auctions[id]
	if !ok {
		return db.Auction{}, sql.ErrNoRows
	}
	return a, nil
}

func (q *querier) GetWinningBid(ctx context.Context, auctionID uuid.UUID) (db.AuctionBid, error) {
	release, err := q.enter(ctx, "GetWinningBid")
	if err != nil {
		return db.AuctionBid{}, err
	}
	defer release()

	var best *db.AuctionBid
	for i := range q.s().bids {
		b := &q.s().bids[i]
		if b.AuctionID != auctionID {
			continue
		}
		if best == nil || b.Amount.GreaterThan(best.Amount) ||
			(b.Amount.Equal(best.Amount) && b.CreatedAt.Before(best.CreatedAt)) {
			best = b
		}
	}
	if best == nil {
		return db.AuctionBid{}, sql.ErrNoRows
	}
	return *best, nil
}

func (q *querier) ListDueAuctions(ctx context.Context, arg db.ListDueAuctionsParams) ([]db.Auction, error) {
	release, err := q.enter(ctx, "ListDueAuctions")
	if err != nil {
		return nil, err
	}
	defer release()

	var items []db.Auction
	for _, a := range q.s().auctions {
		if a.Status != string(models.AuctionStatusActive) || a.ScheduledEndTime.After(arg.Now) {
			continue
		}
		if compareKey(a.ScheduledEndTime, a.ID, arg.AfterEndAt, arg.AfterID) > 0 {
			items = append(items, a)
		}
	}
	slices.SortFunc(items, func(a, b db.Auction) int {
		return compareKey(a.ScheduledEndTime, a.ID, b.ScheduledEndTime, b.ID)
	})
	return limit(items, arg.Limit), nil
}

// Response timers

func (q *querier) CreateResponseTimer(ctx context.Context, arg db.CreateResponseTimerParams) (db.UserAuctionResponseTimer, error) {
	release, err := q.enter(ctx, "CreateResponseTimer")
	if err != nil {
		return db.UserAuctionResponseTimer{}, err
	}
	defer release()

	for _, t := range q.s().timers {
		if t.AuctionID == arg.AuctionID {
			return db.UserAuctionResponseTimer{}, sql.ErrNoRows
		}
	}
	t := db.UserAuctionResponseTimer{
		ID:               arg.ID,
		AuctionID:        arg.AuctionID,
		LeagueID:         arg.LeagueID,
		UserID:           arg.UserID,
		ResponseDeadline: arg.ResponseDeadline,
		Status:           string(models.ResponseStatusPending),
		CreatedAt:        q.d.clock.Now(),
	}
	q.s().timers[t.ID] = t
	return t, nil
}

func (q *querier) GetResponseTimer(ctx context.Context, id uuid.UUID) (db.UserAuctionResponseTimer, error) {
	release, err := q.enter(ctx, "GetResponseTimer")
	if err != nil {
		return db.UserAuctionResponseTimer{}, err
	}
	defer release()

	t, ok := q.s().timers[id]
	if !ok {
		return db.UserAuctionResponseTimer{}, sql.ErrNoRows
	}
	return t, nil
}

func (q *querier) GetResponseTimerByAuction(ctx context.Context, auctionID uuid.UUID) (db.UserAuctionResponseTimer, error) {
	release, err := q.enter(ctx, "GetResponseTimerByAuction")
	if err != nil {
		return db.UserAuctionResponseTimer{}, err
	}
	defer release()

	for _, t := range q.s().timers {
		if t.AuctionID == auctionID {
			return t, nil
		}
	}
	return db.UserAuctionResponseTimer{}, sql.ErrNoRows
}

func (q *querier) ListDueResponseTimers(ctx context.Context, arg db.ListDueResponseTimersParams) ([]db.UserAuctionResponseTimer, error) {
	release, err := q.enter(ctx, "ListDueResponseTimers")
	if err != nil {
		return nil, err
	}
	defer release()

	var items []db.UserAuctionResponseTimer
	for _, t := range q.s().timers {
		if t.Status != string(models.ResponseStatusPending) || t.ResponseDeadline.After(arg.Now) {
			continue
		}
		if compareKey(t.ResponseDeadline, t.ID, arg.AfterDeadline, arg.AfterID) > 0 {
			items = append(items, t)
		}
	}
	slices.SortFunc(items, func(a, b db.UserAuctionResponseTimer) int {
		return compareKey(a.ResponseDeadline, a.ID, b.ResponseDeadline, b.ID)
	})
	return limit(items, arg.Limit), nil
}

func (q *querier) TransitionResponseTimer(ctx context.Context, arg db.TransitionResponseTimerParams) (int64, error) {
	release, err := q.enter(ctx, "TransitionResponseTimer")
	if err != nil {
		return 0, err
	}
	defer release()

	t, ok := q.s().timers[arg.ID]
	if !ok || t.Status != arg.FromStatus {
		return 0, nil
	}
	t.Status = arg.ToStatus
	t.ResolvedAt = sql.NullTime{Time: arg.ResolvedAt, Valid: true}
	q.s().timers[arg.ID] = t
	return 1, nil
}

// Compliance

func (q *querier) findCompliance(leagueID, userID uuid.UUID, phase string) (db.UserLeagueComplianceStatus, bool) {
	for _, c := range q.s().compliance {
		if c.LeagueID == leagueID && c.UserID == userID && c.Phase == phase {
			return c, true
		}
	}
	return db.UserLeagueComplianceStatus{}, false
}

func (q *querier) ClaimComplianceTimer(ctx context.Context, arg db.ClaimComplianceTimerParams) (int64, error) {
	release, err := q.enter(ctx, "ClaimComplianceTimer")
	if err != nil {
		return 0, err
	}
	defer release()

	c, ok := q.s().compliance[arg.ID]
	if !ok || !c.ComplianceTimerStartAt.Valid || !c.ComplianceTimerStartAt.Time.Equal(arg.ExpectedStartAt) {
		return 0, nil
	}
	c.ComplianceTimerStartAt = arg.NextStartAt
	c.UpdatedAt = q.d.clock.Now()
	q.s().compliance[arg.ID] = c
	return 1, nil
}

func (q *querier) ClearComplianceTimer(ctx context.Context, arg db.ClearComplianceTimerParams) (int64, error) {
	release, err := q.enter(ctx, "ClearComplianceTimer")
	if err != nil {
		return 0, err
	}
	defer release()

	c, ok := q.findCompliance(arg.LeagueID, arg.UserID, arg.Phase)
	if !ok || !c.ComplianceTimerStartAt.Valid {
		return 0, nil
	}
	c.ComplianceTimerStartAt = sql.NullTime{}
	c.UpdatedAt = q.d.clock.Now()
	q.s().compliance[c.ID] = c
	return 1, nil
}

func (q *querier) GetComplianceStatus(ctx context.Context, arg db.GetComplianceStatusParams) (db.UserLeagueComplianceStatus, error) {
	release, err := q.enter(ctx, "GetComplianceStatus")
	if err != nil {
		return db.UserLeagueComplianceStatus{}, err
	}
	defer release()

	c, ok := q.findCompliance(arg.LeagueID, arg.UserID, arg.Phase)
	if !ok {
		return db.UserLeagueComplianceStatus{}, sql.ErrNoRows
	}
	return c, nil
}

func (q *querier) ListComplianceStatusesByUser(ctx context.Context, arg db.ListComplianceStatusesByUserParams) ([]db.UserLeagueComplianceStatus, error) {
	release, err := q.enter(ctx, "ListComplianceStatusesByUser")
	if err != nil {
		return nil, err
	}
	defer release()

	var items []db.UserLeagueComplianceStatus
	for _, c := range q.s().compliance {
		if c.LeagueID == arg.LeagueID && c.UserID == arg.UserID {
			items = append(items, c)
		}
	}
	slices.SortFunc(items, func(a, b db.UserLeagueComplianceStatus) int {
		return cmp.Compare(a.Phase, b.Phase)
	})
	return items, nil
}

func (q *querier) ListRunningComplianceTimers(ctx context.Context, arg db.ListRunningComplianceTimersParams) ([]db.ListRunningComplianceTimersRow, error) {
	release, err := q.enter(ctx, "ListRunningComplianceTimers")
	if err != nil {
		return nil, err
	}
	defer release()

	var items []db.ListRunningComplianceTimersRow
	for _, c := range q.s().compliance {
		if !c.ComplianceTimerStartAt.Valid || c.ComplianceTimerStartAt.Time.After(arg.Now) {
			continue
		}
		if compareKey(c.ComplianceTimerStartAt.Time, c.ID, arg.AfterStartAt, arg.AfterID) <= 0 {
			continue
		}
		row := db.ListRunningComplianceTimersRow{
			ID:                     c.ID,
			LeagueID:               c.LeagueID,
			UserID:                 c.UserID,
			Phase:                  c.Phase,
			ComplianceTimerStartAt: c.ComplianceTimerStartAt,
			UpdatedAt:              c.UpdatedAt,
		}
		if raw, ok := q.s().leagues[c.LeagueID]; ok {
			row.LeagueSettings = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
		}
		items = append(items, row)
	}
	slices.SortFunc(items, func(a, b db.ListRunningComplianceTimersRow) int {
		return compareKey(a.ComplianceTimerStartAt.Time, a.ID, b.ComplianceTimerStartAt.Time, b.ID)
	})
	return limit(items, arg.Limit), nil
}

func (q *querier) StartComplianceTimer(ctx context.Context, arg db.StartComplianceTimerParams) (db.UserLeagueComplianceStatus, error) {
	release, err := q.enter(ctx, "StartComplianceTimer")
	if err != nil {
		return db.UserLeagueComplianceStatus{}, err
	}
	defer release()

	c, ok := q.findCompliance(arg.LeagueID, arg.UserID, arg.Phase)
	if !ok {
		c = db.UserLeagueComplianceStatus{
			ID:       arg.ID,
			LeagueID: arg.LeagueID,
			UserID:   arg.UserID,
			Phase:    arg.Phase,
		}
	}
	if !c.ComplianceTimerStartAt.Valid {
		c.ComplianceTimerStartAt = sql.NullTime{Time: arg.StartAt, Valid: true}
	}
	c.UpdatedAt = q.d.clock.Now()
	q.s().compliance[c.ID] = c
	return c, nil
}

// Penalties

func (q *querier) CountPenaltyRecords(ctx context.Context, arg db.CountPenaltyRecordsParams) (int64, error) {
	release, err := q.enter(ctx, "CountPenaltyRecords")
	if err != nil {
		return 0, err
	}
	defer release()

	var n int64
	for _, p := range q.s().penalties {
		if p.LeagueID == arg.LeagueID && p.UserID == arg.UserID && p.Phase == arg.Phase {
			n++
		}
	}
	return n, nil
}

func (q *querier) InsertPenaltyRecord(ctx context.Context, arg db.InsertPenaltyRecordParams) (db.PenaltyRecord, error) {
	release, err := q.enter(ctx, "InsertPenaltyRecord")
	if err != nil {
		return db.PenaltyRecord{}, err
	}
	defer release()

	for _, p := range q.s().penalties {
		if p.ComplianceStatusID == arg.ComplianceStatusID && p.TimerStartedAt.Equal(arg.TimerStartedAt) {
			return db.PenaltyRecord{}, sql.ErrNoRows
		}
	}
	if arg.Amount.IsNegative() || arg.Shortfall.IsNegative() {
		return db.PenaltyRecord{}, checkViolation("penalty_records_amount_check")
	}
	p := db.PenaltyRecord{
		ID:                 arg.ID,
		ComplianceStatusID: arg.ComplianceStatusID,
		LeagueID:           arg.LeagueID,
		UserID:             arg.UserID,
		Phase:              arg.Phase,
		TimerStartedAt:     arg.TimerStartedAt,
		Amount:             arg.Amount,
		Shortfall:          arg.Shortfall,
		AppliedAt:          arg.AppliedAt,
		Details:            arg.Details,
	}
	q.s().penalties = append(q.s().penalties, p)
	return p, nil
}

func (q *querier) UpdatePenaltyShortfall(ctx context.Context, arg db.UpdatePenaltyShortfallParams) error {
	release, err := q.enter(ctx, "UpdatePenaltyShortfall")
	if err != nil {
		return err
	}
	defer release()

	for i := range q.s().penalties {
		if q.s().penalties[i].ID == arg.ID {
			q.s().penalties[i].Shortfall = arg.Shortfall
			q.s().penalties[i].Details = arg.Details
		}
	}
	return nil
}

func (q *querier) ListPenaltyRecordsByUser(ctx context.Context, arg db.ListPenaltyRecordsByUserParams) ([]db.PenaltyRecord, error) {
	release, err := q.enter(ctx, "ListPenaltyRecordsByUser")
	if err != nil {
		return nil, err
	}
	defer release()

	var items []db.PenaltyRecord
	for _, p := range q.s().penalties {
		if p.LeagueID == arg.LeagueID && p.UserID == arg.UserID {
			items = append(items, p)
		}
	}
	slices.SortStableFunc(items, func(a, b db.PenaltyRecord) int {
		return b.AppliedAt.Compare(a.AppliedAt)
	})
	return items, nil
}

// Participants

func (q *querier) getParticipant(ctx context.Context, method string, arg db.GetParticipantParams) (db.LeagueParticipant, error) {
	release, err := q.enter(ctx, method)
	if err != nil {
		return db.LeagueParticipant{}, err
	}
	defer release()

	p, ok := q.s().participants[memberKey{arg.LeagueID, arg.UserID}]
	if !ok {
		return db.LeagueParticipant{}, sql.ErrNoRows
	}
	return p, nil
}

func (q *querier) GetParticipant(ctx context.Context, arg db.GetParticipantParams) (db.LeagueParticipant, error) {
	return q.getParticipant(ctx, "GetParticipant", arg)
}

func (q *querier) GetParticipantForUpdate(ctx context.Context, arg db.GetParticipantParams) (db.LeagueParticipant, error) {
	return q.getParticipant(ctx, "GetParticipantForUpdate", arg)
}

func (q *querier) UpdateParticipantBalance(ctx context.Context, arg db.UpdateParticipantBalanceParams) (int64, error) {
	release, err := q.enter(ctx, "UpdateParticipantBalance")
	if err != nil {
		return 0, err
	}
	defer release()

	key := memberKey{arg.LeagueID, arg.UserID}
	p, ok := q.s().participants[key]
	if !ok {
		return 0, nil
	}
	switch {
	case arg.CurrentBudget.IsNegative():
		return 0, checkViolation("league_participants_current_budget_check")
	case arg.LockedCredits.IsNegative(), arg.LockedCredits.GreaterThan(arg.CurrentBudget):
		return 0, checkViolation("league_participants_locked_credits_check")
	}
	p.CurrentBudget = arg.CurrentBudget
	p.LockedCredits = arg.LockedCredits
	p.UpdatedAt = q.d.clock.Now()
	q.s().participants[key] = p
	return 1, nil
}

// Leagues

func (q *querier) GetLeagueSettings(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	release, err := q.enter(ctx, "GetLeagueSettings")
	if err != nil {
		return nil, err
	}
	defer release()

	raw, ok := q.s().leagues[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return append(json.RawMessage(nil), raw...), nil
}

// Outbox

func (q *querier) CountUnsentOutbox(ctx context.Context) (int64, error) {
	release, err := q.enter(ctx, "CountUnsentOutbox")
	if err != nil {
		return 0, err
	}
	defer release()

	var n int64
	for _, e := range q.s().outbox {
		if !e.SentAt.Valid {
			n++
		}
	}
	return n, nil
}

func (q *querier) FetchUnsentOutbox(ctx context.Context, n int32) ([]db.EngineOutbox, error) {
	release, err := q.enter(ctx, "FetchUnsentOutbox")
	if err != nil {
		return nil, err
	}
	defer release()

	var items []db.EngineOutbox
	for _, e := range q.s().outbox {
		if !e.SentAt.Valid {
			items = append(items, e)
		}
	}
	return limit(items, n), nil
}

func (q *querier) InsertOutboxEvent(ctx context.Context, arg db.InsertOutboxEventParams) error {
	release, err := q.enter(ctx, "InsertOutboxEvent")
	if err != nil {
		return err
	}
	defer release()

	q.s().outbox = append(q.s().outbox, db.EngineOutbox{
		ID:          arg.ID,
		AggregateID: arg.AggregateID,
		EventType:   arg.EventType,
		Payload:     append(json.RawMessage(nil), arg.Payload...),
		CreatedAt:   q.d.clock.Now(),
	})
	return nil
}

func (q *querier) MarkOutboxSent(ctx context.Context, arg db.MarkOutboxSentParams) error {
	release, err := q.enter(ctx, "MarkOutboxSent")
	if err != nil {
		return err
	}
	defer release()

	for i := range q.s().outbox {
		if slices.Contains(arg.IDs, q.s().outbox[i].ID) {
			q.s().outbox[i].SentAt = sql.NullTime{Time: arg.SentAt, Valid: true}
		}
	}
	return nil
}
