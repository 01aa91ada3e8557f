package responsetimer

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
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
	"github.com/mcdev12/leaguetimers/go/internal/leagues"
	"github.com/mcdev12/leaguetimers/go/internal/ledger"
	"github.com/mcdev12/leaguetimers/go/internal/models"
)

func at(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

type fixture struct {
	store    *memdb.DB
	mgr      *Manager
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
	f := &fixture{
		store:    store,
		mgr:      NewManager(store, svc, resolver, 100),
		leagueID: uuid.New(),
	}
	store.AddLeague(f.leagueID, nil)
	return f
}

func (f *fixture) closure(winner *uuid.UUID, closedAt time.Time) models.ClosedAuction {
	return models.ClosedAuction{
		AuctionID: uuid.New(),
		LeagueID:  f.leagueID,
		PlayerID:  uuid.New(),
		WinnerID:  winner,
		ClosedAt:  closedAt,
	}
}

func TestOnAuctionClosed_Deadline(t *testing.T) {
	f := newFixture(t)
	winner := uuid.New()

	timer, err := f.mgr.OnAuctionClosed(context.Background(), f.closure(&winner, at(1000)))
	require.NoError(t, err)
	require.NotNil(t, timer)
	assert.Equal(t, models.ResponseStatusPending, timer.Status)
	assert.Equal(t, winner, timer.UserID)
	assert.True(t, timer.ResponseDeadline.Equal(at(4600)))
}

func TestOnAuctionClosed_LeagueWindow(t *testing.T) {
	f := newFixture(t)
	f.store.AddLeague(f.leagueID, json.RawMessage(`{"timers":{"response_window_sec":120}}`))
	winner := uuid.New()

	timer, err := f.mgr.OnAuctionClosed(context.Background(), f.closure(&winner, at(1000)))
	require.NoError(t, err)
	assert.True(t, timer.ResponseDeadline.Equal(at(1120)))
}

func TestOnAuctionClosed_Duplicate(t *testing.T) {
	f := newFixture(t)
	winner := uuid.New()
	c := f.closure(&winner, at(1000))

	_, err := f.mgr.OnAuctionClosed(context.Background(), c)
	require.NoError(t, err)

	_, err = f.mgr.OnAuctionClosed(context.Background(), c)
	assert.ErrorIs(t, err, engineerr.ErrDuplicateTimer)

	err = f.store.InTx(context.Background(), func(q db.Querier) error {
		return f.mgr.HandleAuctionClosed(context.Background(), q, c)
	})
	assert.NoError(t, err)
}

func TestOnAuctionClosed_NoWinner(t *testing.T) {
	f := newFixture(t)
	c := f.closure(nil, at(1000))

	timer, err := f.mgr.OnAuctionClosed(context.Background(), c)
	require.NoError(t, err)
	assert.Nil(t, timer)

	_, err = f.mgr.ByAuction(context.Background(), c.AuctionID)
	assert.ErrorIs(t, err, engineerr.ErrNotFound)
}

func TestProcessExpired_RaisesViolation(t *testing.T) {
	f := newFixture(t)
	winner := uuid.New()
	timer, err := f.mgr.OnAuctionClosed(context.Background(), f.closure(&winner, at(1000)))
	require.NoError(t, err)

	res, err := f.mgr.ProcessExpired(context.Background(), at(4599))
	require.NoError(t, err)
	assert.Zero(t, res.ExpiredCount)

	res, err = f.mgr.ProcessExpired(context.Background(), at(4600))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredCount)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, models.Violation{LeagueID: f.leagueID, UserID: winner, Phase: models.CompliancePhaseResponse}, res.Violations[0])

	got, err := f.mgr.ByAuction(context.Background(), timer.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseStatusExpired, got.Status)

	status, err := f.store.GetComplianceStatus(context.Background(), db.GetComplianceStatusParams{
		LeagueID: f.leagueID,
		UserID:   winner,
		Phase:    string(models.CompliancePhaseResponse),
	})
	require.NoError(t, err)
	require.True(t, status.ComplianceTimerStartAt.Valid)
	assert.True(t, status.ComplianceTimerStartAt.Time.Equal(at(4600)))

	res, err = f.mgr.ProcessExpired(context.Background(), at(4700))
	require.NoError(t, err)
	assert.Zero(t, res.ExpiredCount)
}

func TestProcessExpired_SkipsResolved(t *testing.T) {
	f := newFixture(t)
	winner := uuid.New()
	timer, err := f.mgr.OnAuctionClosed(context.Background(), f.closure(&winner, at(1000)))
	require.NoError(t, err)

	_, err = f.mgr.Resolve(context.Background(), timer.ID, models.ResponseStatusAccepted, at(2000))
	require.NoError(t, err)

	res, err := f.mgr.ProcessExpired(context.Background(), at(9000))
	require.NoError(t, err)
	assert.Zero(t, res.ExpiredCount)
	assert.Empty(t, res.Errors)
}

func TestProcessExpired_TransientAborts(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		winner := uuid.New()
		_, err := f.mgr.OnAuctionClosed(context.Background(), f.closure(&winner, at(1000+int64(i))))
		require.NoError(t, err)
	}
	f.store.FailNext("TransitionResponseTimer", driver.ErrBadConn)

	res, err := f.mgr.ProcessExpired(context.Background(), at(9000))
	require.Error(t, err)
	assert.True(t, engineerr.IsTransient(err))
	assert.Zero(t, res.ExpiredCount)

	res, err = f.mgr.ProcessExpired(context.Background(), at(9000))
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExpiredCount)
}

func TestProcessExpired_RowErrorContinues(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		winner := uuid.New()
		_, err := f.mgr.OnAuctionClosed(context.Background(), f.closure(&winner, at(1000+int64(i))))
		require.NoError(t, err)
	}
	f.store.FailNext("StartComplianceTimer", errors.New("violates foreign key constraint"))

	res, err := f.mgr.ProcessExpired(context.Background(), at(9000))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredCount)
	assert.Len(t, res.Errors, 1)

	// the failed row rolled back and is still pending
	res, err = f.mgr.ProcessExpired(context.Background(), at(9000))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredCount)
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	winner := uuid.New()
	timer, err := f.mgr.OnAuctionClosed(context.Background(), f.closure(&winner, at(1000)))
	require.NoError(t, err)

	_, err = f.mgr.Resolve(context.Background(), timer.ID, models.ResponseStatusExpired, at(1500))
	assert.Error(t, err)

	resolved, err := f.mgr.Resolve(context.Background(), timer.ID, models.ResponseStatusDeclined, at(1500))
	require.NoError(t, err)
	assert.Equal(t, models.ResponseStatusDeclined, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.True(t, resolved.ResolvedAt.Equal(at(1500)))

	_, err = f.mgr.Resolve(context.Background(), timer.ID, models.ResponseStatusAccepted, at(1600))
	var transErr *engineerr.InvalidTransitionError
	require.True(t, errors.As(err, &transErr))
	assert.Equal(t, "declined", transErr.From)
	assert.Equal(t, "accepted", transErr.To)

	_, err = f.mgr.Resolve(context.Background(), uuid.New(), models.ResponseStatusAccepted, at(1600))
	assert.ErrorIs(t, err, engineerr.ErrNotFound)
}

func TestResolve_AfterExpiry(t *testing.T) {
	f := newFixture(t)
	winner := uuid.New()
	timer, err := f.mgr.OnAuctionClosed(context.Background(), f.closure(&winner, at(1000)))
	require.NoError(t, err)

	_, err = f.mgr.ProcessExpired(context.Background(), at(5000))
	require.NoError(t, err)

	_, err = f.mgr.Resolve(context.Background(), timer.ID, models.ResponseStatusAccepted, at(5001))
	assert.ErrorIs(t, err, engineerr.ErrInvalidTransition)
}

func TestProcessExpired_FailingTimerDoesNotStarveLaterOnes(t *testing.T) {
	f := newFixture(t)
	resolver := leagues.NewResolver(models.TimerConfig{
		ResponseWindow:   time.Hour,
		ComplianceWindow: time.Hour,
		PenaltyAmount:    decimal.NewFromInt(10),
	})
	svc := compliance.NewService(f.store, ledger.New(f.store, ledger.FundsPolicyClip), resolver, nil, 1)
	mgr := NewManager(f.store, svc, resolver, 1)

	broken := uuid.New()
	f.store.AddResponseTimer(db.UserAuctionResponseTimer{
		ID:               broken,
		AuctionID:        uuid.New(),
		LeagueID:         f.leagueID,
		ResponseDeadline: at(500),
		Status:           string(models.ResponseStatusPending),
	})
	winner := uuid.New()
	timer, err := mgr.OnAuctionClosed(context.Background(), f.closure(&winner, at(1000)))
	require.NoError(t, err)

	res, err := mgr.ProcessExpired(context.Background(), at(9000))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredCount)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], broken.String())

	got, err := mgr.ByAuction(context.Background(), timer.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseStatusExpired, got.Status)
}

func TestProcessExpired_CancelledContextStops(t *testing.T) {
	f := newFixture(t)
	winner := uuid.New()
	timer, err := f.mgr.OnAuctionClosed(context.Background(), f.closure(&winner, at(1000)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.mgr.ProcessExpired(ctx, at(9000))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.ExpiredCount)
	assert.Empty(t, res.Errors)

	got, err := f.mgr.ByAuction(context.Background(), timer.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseStatusPending, got.Status)
}
