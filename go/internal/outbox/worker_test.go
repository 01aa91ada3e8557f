package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/leaguetimers/go/internal/db"
	"github.com/mcdev12/leaguetimers/go/internal/db/memdb"
	"github.com/mcdev12/leaguetimers/go/internal/events"
)

type recordingPublisher struct {
	mu     sync.Mutex
	failOn string
	got    []Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.EventType == p.failOn {
		return errors.New("broker unavailable")
	}
	p.got = append(p.got, event)
	return nil
}

func record(t *testing.T, store *memdb.DB, leagueID uuid.UUID, eventType string) {
	t.Helper()
	err := store.InTx(context.Background(), func(q db.Querier) error {
		return Record(context.Background(), q, leagueID, eventType, map[string]string{"league_id": leagueID.String()})
	})
	require.NoError(t, err)
}

func TestRecord_RollsBackWithTransaction(t *testing.T) {
	store := memdb.New(clockwork.NewFakeClock())
	leagueID := uuid.New()

	err := store.InTx(context.Background(), func(q db.Querier) error {
		require.NoError(t, Record(context.Background(), q, leagueID, events.TypeAuctionClosed, struct{}{}))
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Empty(t, store.Outbox())
}

func TestRecord_RejectsEmptyType(t *testing.T) {
	store := memdb.New(clockwork.NewFakeClock())
	err := Record(context.Background(), store, uuid.New(), "", struct{}{})
	assert.Error(t, err)
}

func TestWorker_ProcessOnceMarksPublished(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1000, 0))
	store := memdb.New(clock)
	leagueID := uuid.New()
	record(t, store, leagueID, events.TypeAuctionClosed)
	record(t, store, leagueID, events.TypePenaltyApplied)

	pub := &recordingPublisher{}
	w := NewWorker(store, pub, Config{BatchSize: 10}, clock)

	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, pub.got, 2)
	assert.Equal(t, events.TypeAuctionClosed, pub.got[0].EventType)
	assert.Equal(t, leagueID, pub.got[1].AggregateID)

	unsent, err := store.CountUnsentOutbox(context.Background())
	require.NoError(t, err)
	assert.Zero(t, unsent)

	n, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWorker_FailedPublishStaysUnsent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := memdb.New(clock)
	leagueID := uuid.New()
	record(t, store, leagueID, events.TypeAuctionClosed)
	record(t, store, leagueID, events.TypePenaltyApplied)

	pub := &recordingPublisher{failOn: events.TypePenaltyApplied}
	w := NewWorker(store, pub, Config{BatchSize: 10, MaxRetries: 0}, clock)

	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	unsent, err := store.FetchUnsentOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, unsent, 1)
	assert.Equal(t, events.TypePenaltyApplied, unsent[0].EventType)
}

func TestWorker_FetchErrorPropagates(t *testing.T) {
	store := memdb.New(clockwork.NewFakeClock())
	store.FailNext("FetchUnsentOutbox", errors.New("connection reset"))

	w := NewWorker(store, &recordingPublisher{}, DefaultConfig(), nil)
	_, err := w.ProcessOnce(context.Background())
	assert.Error(t, err)
}

func TestWorker_StartStop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := memdb.New(clock)
	w := NewWorker(store, &recordingPublisher{}, Config{PollInterval: time.Second, BatchSize: 1}, clock)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	assert.Error(t, w.Stop())
}

func TestWorker_NotifyTriggersPass(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1000, 0))
	store := memdb.New(clock)
	pub := &recordingPublisher{}
	w := NewWorker(store, pub, Config{PollInterval: time.Hour, BatchSize: 10}, clock)

	require.NoError(t, w.Start(context.Background()))
	defer func() { require.NoError(t, w.Stop()) }()

	assert.Eventually(t, func() bool {
		_, last := w.Stats()
		return !last.IsZero()
	}, time.Second, 5*time.Millisecond)

	record(t, store, uuid.New(), events.TypeComplianceTimerStarted)
	w.Notify()
	w.Notify()

	assert.Eventually(t, func() bool {
		published, _ := w.Stats()
		return published == 1
	}, time.Second, 5*time.Millisecond)
}
