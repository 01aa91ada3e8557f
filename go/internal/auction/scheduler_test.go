package auction

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/leaguetimers/go/internal/compliance"
	"github.com/mcdev12/leaguetimers/go/internal/db"
	"github.com/mcdev12/leaguetimers/go/internal/db/memdb"
	"github.com/mcdev12/leaguetimers/go/internal/engineerr"
	"github.com/mcdev12/leaguetimers/go/internal/events"
	"github.com/mcdev12/leaguetimers/go/internal/leagues"
	"github.com/mcdev12/leaguetimers/go/internal/ledger"
	"github.com/mcdev12/leaguetimers/go/internal/models"
	"github.com/mcdev12/leaguetimers/go/internal/responsetimer"
)

func at(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

type fixture struct {
	store    *memdb.DB
	timers   *responsetimer.Manager
	sched    *Scheduler
	leagueID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memdb.New(clockwork.NewFakeClockAt(at(0)))
	resolver := leagues.NewResolver(models.TimerConfig{
		ResponseWindow:   time.Hour,
		ComplianceWindow: time.Hour,
		PenaltyAmount:    decimal.NewFromInt(10),
	})
	svc := compliance.NewService(store, ledger.New(store, ledger.FundsPolicyClip), resolver, nil, 100)
	timers := responsetimer.NewManager(store, svc, resolver, 100)
	f := &fixture{
		store:    store,
		timers:   timers,
		sched:    NewScheduler(store, nil, timers, 100),
		leagueID: uuid.New(),
	}
	store.AddLeague(f.leagueID, nil)
	return f
}

func (f *fixture) auction(end time.Time) uuid.UUID {
	id := uuid.New()
	f.store.AddAuction(db.Auction{
		ID:               id,
		LeagueID:         f.leagueID,
		PlayerID:         uuid.New(),
		Status:           string(models.AuctionStatusActive),
		ScheduledEndTime: end,
	})
	return id
}

func (f *fixture) bid(auctionID, userID uuid.UUID, amount int64, placed time.Time) {
	f.store.AddBid(db.AuctionBid{
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    decimal.NewFromInt(amount),
		CreatedAt: placed,
	})
}

func TestCloseExpired(t *testing.T) {
	f := newFixture(t)
	due := f.auction(at(900))
	future := f.auction(at(2000))

	early, late, low := uuid.New(), uuid.New(), uuid.New()
	f.bid(due, low, 5, at(100))
	f.bid(due, late, 12, at(300))
	f.bid(due, early, 12, at(200))

	res, err := f.sched.CloseExpired(context.Background(), at(1000))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ClosedCount)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Closed, 1)
	require.NotNil(t, res.Closed[0].WinnerID)
	assert.Equal(t, early, *res.Closed[0].WinnerID)

	row, err := f.store.GetAuction(context.Background(), due)
	require.NoError(t, err)
	assert.Equal(t, string(models.AuctionStatusClosed), row.Status)
	assert.True(t, row.ClosedAt.Time.Equal(at(1000)))

	row, err = f.store.GetAuction(context.Background(), future)
	require.NoError(t, err)
	assert.Equal(t, string(models.AuctionStatusActive), row.Status)

	timer, err := f.timers.ByAuction(context.Background(), due)
	require.NoError(t, err)
	assert.Equal(t, early, timer.UserID)
	assert.True(t, timer.ResponseDeadline.Equal(at(4600)))

	var types []string
	for _, e := range f.store.Outbox() {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{events.TypeAuctionClosed, events.TypeResponseTimerCreated}, types)
}

func TestCloseExpired_Monotonic(t *testing.T) {
	f := newFixture(t)
	id := f.auction(at(900))

	res, err := f.sched.CloseExpired(context.Background(), at(1000))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ClosedCount)

	res, err = f.sched.CloseExpired(context.Background(), at(5000))
	require.NoError(t, err)
	assert.Zero(t, res.ClosedCount)

	row, err := f.store.GetAuction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, string(models.AuctionStatusClosed), row.Status)
	assert.True(t, row.ClosedAt.Time.Equal(at(1000)))
}

func TestCloseExpired_NoBids(t *testing.T) {
	f := newFixture(t)
	id := f.auction(at(900))

	res, err := f.sched.CloseExpired(context.Background(), at(900))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ClosedCount)
	assert.Nil(t, res.Closed[0].WinnerID)

	_, err = f.timers.ByAuction(context.Background(), id)
	assert.ErrorIs(t, err, engineerr.ErrNotFound)
}

func TestCloseExpired_ConcurrentSweepsCloseOnce(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 20; i++ {
		id := f.auction(at(100 + int64(i)))
		f.bid(id, uuid.New(), 10, at(50))
	}

	var (
		mu    sync.Mutex
		total int
		wg    sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.sched.CloseExpired(context.Background(), at(1000))
			assert.NoError(t, err)
			assert.Empty(t, res.Errors)
			mu.Lock()
			total += res.ClosedCount
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, total)
	created := 0
	for _, e := range f.store.Outbox() {
		if e.EventType == events.TypeResponseTimerCreated {
			created++
		}
	}
	assert.Equal(t, 20, created)
}

type failingHandler struct{}

func (failingHandler) HandleAuctionClosed(context.Context, db.Querier, models.ClosedAuction) error {
	return errors.New("handler failed")
}

func TestCloseExpired_HandlerErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	id := f.auction(at(900))
	sched := NewScheduler(f.store, HighestBidResolver{}, failingHandler{}, 10)

	res, err := sched.CloseExpired(context.Background(), at(1000))
	require.NoError(t, err)
	assert.Zero(t, res.ClosedCount)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], id.String())

	row, err := f.store.GetAuction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, string(models.AuctionStatusActive), row.Status)
	assert.Empty(t, f.store.Outbox())
}

type failingFor struct {
	auctionID uuid.UUID
	next      ClosureHandler
}

func (h failingFor) HandleAuctionClosed(ctx context.Context, q db.Querier, c models.ClosedAuction) error {
	if c.AuctionID == h.auctionID {
		return errors.New("handler failed")
	}
	return h.next.HandleAuctionClosed(ctx, q, c)
}

func TestCloseExpired_FailingAuctionDoesNotStarveLaterOnes(t *testing.T) {
	f := newFixture(t)
	stuck := f.auction(at(500))
	due := f.auction(at(900))
	sched := NewScheduler(f.store, nil, failingFor{auctionID: stuck, next: f.timers}, 1)

	for i := 0; i < 2; i++ {
		res, err := sched.CloseExpired(context.Background(), at(1000))
		require.NoError(t, err)
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0], stuck.String())
	}

	row, err := f.store.GetAuction(context.Background(), due)
	require.NoError(t, err)
	assert.Equal(t, string(models.AuctionStatusClosed), row.Status)

	row, err = f.store.GetAuction(context.Background(), stuck)
	require.NoError(t, err)
	assert.Equal(t, string(models.AuctionStatusActive), row.Status)
}

func TestCloseExpired_CancelledContextStops(t *testing.T) {
	f := newFixture(t)
	id := f.auction(at(900))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.sched.CloseExpired(ctx, at(1000))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.ClosedCount)
	assert.Empty(t, res.Errors)

	row, err := f.store.GetAuction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, string(models.AuctionStatusActive), row.Status)
}

func TestCloseExpired_DataIntegrityContinues(t *testing.T) {
	f := newFixture(t)
	f.store.AddAuction(db.Auction{
		ID:       uuid.New(),
		LeagueID: f.leagueID,
		PlayerID: uuid.New(),
		Status:   string(models.AuctionStatusActive),
	})
	f.auction(at(900))

	res, err := f.sched.CloseExpired(context.Background(), at(1000))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ClosedCount)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "data integrity")
}

func TestCloseExpired_TransientAborts(t *testing.T) {
	f := newFixture(t)
	f.auction(at(900))
	f.auction(at(950))
	f.store.FailNext("CloseAuction", driver.ErrBadConn)

	res, err := f.sched.CloseExpired(context.Background(), at(1000))
	require.Error(t, err)
	assert.True(t, engineerr.IsTransient(err))
	assert.Zero(t, res.ClosedCount)

	res, err = f.sched.CloseExpired(context.Background(), at(1000))
	require.NoError(t, err)
	assert.Equal(t, 2, res.ClosedCount)
}

func TestCountdown(t *testing.T) {
	f := newFixture(t)
	id := f.auction(at(1000))
	winner := uuid.New()
	f.bid(id, winner, 10, at(10))

	c, err := f.sched.Countdown(context.Background(), id, at(400))
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusActive, c.Status)
	assert.Equal(t, int64(600), c.RemainingSec)
	assert.False(t, c.Overdue)

	c, err = f.sched.Countdown(context.Background(), id, at(1200))
	require.NoError(t, err)
	assert.True(t, c.Overdue)
	assert.Zero(t, c.RemainingSec)

	_, err = f.sched.CloseExpired(context.Background(), at(1200))
	require.NoError(t, err)

	c, err = f.sched.Countdown(context.Background(), id, at(1800))
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusClosed, c.Status)
	require.NotNil(t, c.Response)
	assert.Equal(t, winner, c.Response.UserID)
	assert.Equal(t, int64(3000), c.ResponseLeftSec)

	_, err = f.sched.Countdown(context.Background(), uuid.New(), at(0))
	assert.ErrorIs(t, err, engineerr.ErrNotFound)
}
