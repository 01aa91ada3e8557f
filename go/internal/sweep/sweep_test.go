package sweep

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/leaguetimers/go/internal/auction"
	"github.com/mcdev12/leaguetimers/go/internal/compliance"
	"github.com/mcdev12/leaguetimers/go/internal/db"
	"github.com/mcdev12/leaguetimers/go/internal/db/memdb"
	"github.com/mcdev12/leaguetimers/go/internal/engineerr"
	"github.com/mcdev12/leaguetimers/go/internal/leagues"
	"github.com/mcdev12/leaguetimers/go/internal/ledger"
	"github.com/mcdev12/leaguetimers/go/internal/models"
	"github.com/mcdev12/leaguetimers/go/internal/responsetimer"
)

func at(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

type engine struct {
	store    *memdb.DB
	ledger   *ledger.Ledger
	sweep    *Sweep
	leagueID uuid.UUID
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	store := memdb.New(clockwork.NewFakeClockAt(at(0)))
	resolver := leagues.NewResolver(models.TimerConfig{
		ResponseWindow:   time.Hour,
		ComplianceWindow: time.Hour,
		PenaltyAmount:    decimal.NewFromInt(20),
	})
	l := ledger.New(store, ledger.FundsPolicyClip)
	svc := compliance.NewService(store, l, resolver, nil, 100)
	timers := responsetimer.NewManager(store, svc, resolver, 100)
	sched := auction.NewScheduler(store, auction.HighestBidResolver{}, timers, 100)

	e := &engine{
		store:    store,
		ledger:   l,
		sweep:    New(sched, timers, svc),
		leagueID: uuid.New(),
	}
	store.AddLeague(e.leagueID, nil)
	return e
}

func TestRun_FullLifecycle(t *testing.T) {
	e := newEngine(t)
	winner := uuid.New()
	e.store.AddParticipant(e.leagueID, winner, decimal.NewFromInt(100), decimal.NewFromInt(30))

	auctionID := uuid.New()
	e.store.AddAuction(db.Auction{
		ID:               auctionID,
		LeagueID:         e.leagueID,
		PlayerID:         uuid.New(),
		Status:           string(models.AuctionStatusActive),
		ScheduledEndTime: at(1000),
	})
	e.store.AddBid(db.AuctionBid{AuctionID: auctionID, UserID: winner, Amount: decimal.NewFromInt(30), CreatedAt: at(500)})

	res, err := e.sweep.Run(context.Background(), at(1000))
	require.NoError(t, err)
	assert.Equal(t, Result{Now: at(1000), ClosedCount: 1, Errors: []string{}}, res)

	// response deadline 4600
	res, err = e.sweep.Run(context.Background(), at(4600))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ClosedCount)
	assert.Equal(t, 1, res.ExpiredCount)
	assert.Equal(t, 0, res.ProcessedCount)

	// compliance deadline 4600 + 3600
	res, err = e.sweep.Run(context.Background(), at(8199))
	require.NoError(t, err)
	assert.Zero(t, res.ProcessedCount)

	res, err = e.sweep.Run(context.Background(), at(8200))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ProcessedCount)
	assert.Empty(t, res.Errors)

	budget, err := e.ledger.CurrentBudget(context.Background(), e.leagueID, winner)
	require.NoError(t, err)
	assert.Equal(t, "80", budget.String())

	res, err = e.sweep.Run(context.Background(), at(20000))
	require.NoError(t, err)
	assert.Equal(t, Result{Now: at(20000), Errors: []string{}}, res)
}

func TestRun_StopsOnTransientFailure(t *testing.T) {
	e := newEngine(t)
	userID := uuid.New()
	start := at(0)
	e.store.AddParticipant(e.leagueID, userID, decimal.NewFromInt(100), decimal.Zero)
	e.store.AddComplianceStatus(uuid.New(), e.leagueID, userID, string(models.CompliancePhaseRoster), &start)
	e.store.FailNext("ListDueResponseTimers", driver.ErrBadConn)

	res, err := e.sweep.Run(context.Background(), at(5000))
	require.Error(t, err)
	assert.True(t, engineerr.IsTransient(err))
	assert.Zero(t, res.ProcessedCount)
	assert.Empty(t, e.store.PenaltyRecords())
}

type stubCloser struct {
	calls chan time.Time
	res   auction.CloseResult
	err   error
}

func (s *stubCloser) CloseExpired(_ context.Context, now time.Time) (auction.CloseResult, error) {
	if s.calls != nil {
		s.calls <- now
	}
	return s.res, s.err
}

type stubExpirer struct {
	res responsetimer.ExpireResult
	err error
}

func (s stubExpirer) ProcessExpired(context.Context, time.Time) (responsetimer.ExpireResult, error) {
	return s.res, s.err
}

type stubProcessor struct {
	called bool
	res    compliance.ProcessResult
}

func (s *stubProcessor) ProcessExpiredComplianceTimers(context.Context, time.Time) (compliance.ProcessResult, error) {
	s.called = true
	return s.res, nil
}

func TestRun_AggregatesErrors(t *testing.T) {
	closer := &stubCloser{res: auction.CloseResult{ClosedCount: 2, Errors: []string{"auction a"}}}
	expirer := stubExpirer{res: responsetimer.ExpireResult{ExpiredCount: 1, Errors: []string{"timer b"}}}
	proc := &stubProcessor{res: compliance.ProcessResult{ProcessedCount: 3, Errors: []string{"status c"}}}

	res, err := New(closer, expirer, proc).Run(context.Background(), at(10))
	require.NoError(t, err)
	assert.Equal(t, 2, res.ClosedCount)
	assert.Equal(t, 1, res.ExpiredCount)
	assert.Equal(t, 3, res.ProcessedCount)
	assert.Equal(t, []string{"auction a", "timer b", "status c"}, res.Errors)
}

func TestRun_StopsAfterFailedPass(t *testing.T) {
	closer := &stubCloser{}
	expirer := stubExpirer{err: errors.New("boom")}
	proc := &stubProcessor{}

	_, err := New(closer, expirer, proc).Run(context.Background(), at(10))
	require.Error(t, err)
	assert.False(t, proc.called)
}
