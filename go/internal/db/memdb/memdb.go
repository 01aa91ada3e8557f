// Package memdb is an in-memory db.Store for tests and local runs without Postgres.
// It mirrors the row-level semantics of the SQL queries: conditional updates report
// affected rows, conflicting inserts return sql.ErrNoRows, and InTx rolls back on error.
package memdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"

	"github.com/mcdev12/leaguetimers/go/internal/db"
)

type memberKey struct {
	leagueID uuid.UUID
	userID   uuid.UUID
}

type state struct {
	leagues      map[uuid.UUID]json.RawMessage
	participants map[memberKey]db.LeagueParticipant
	auctions     map[uuid.UUID]db.Auction
	bids         []db.AuctionBid
	timers       map[uuid.UUID]db.UserAuctionResponseTimer
	compliance   map[uuid.UUID]db.UserLeagueComplianceStatus
	penalties    []db.PenaltyRecord
	outbox       []db.EngineOutbox
}

func newState() *state {
	return &state{
		leagues:      make(map[uuid.UUID]json.RawMessage),
		participants: make(map[memberKey]db.LeagueParticipant),
		auctions:     make(map[uuid.UUID]db.Auction),
		timers:       make(map[uuid.UUID]db.UserAuctionResponseTimer),
		compliance:   make(map[uuid.UUID]db.UserLeagueComplianceStatus),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.leagues {
		c.leagues[k] = append(json.RawMessage(nil), v...)
	}
	for k, v := range s.participants {
		c.participants[k] = v
	}
	for k, v := range s.auctions {
		c.auctions[k] = v
	}
	for k, v := range s.timers {
		c.timers[k] = v
	}
	for k, v := range s.compliance {
		c.compliance[k] = v
	}
	c.bids = append(c.bids, s.bids...)
	c.penalties = append(c.penalties, s.penalties...)
	c.outbox = append(c.outbox, s.outbox...)
	return c
}

// DB is safe for concurrent use. Transactions are serialized.
type DB struct {
	*querier

	mu     sync.Mutex
	clock  clockwork.Clock
	state  *state
	faults map[string][]error
}

var _ db.Store = (*DB)(nil)

func New(clock clockwork.Clock) *DB {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	d := &DB{
		clock:  clock,
		state:  newState(),
		faults: make(map[string][]error),
	}
	d.querier = &querier{d: d}
	return d
}

// InTx runs fn with exclusive access. Any error restores the state seen on entry.
func (d *DB) InTx(ctx context.Context, fn func(q db.Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := d.state.clone()
	if err := fn(&querier{d: d, tx: true}); err != nil {
		d.state = snapshot
		return err
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return ctx.Err()
}

// FailNext makes the next call to the named Querier method return err.
// Queued errors for the same method are returned in order.
func (d *DB) FailNext(method string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[method] = append(d.faults[method], err)
}

func (d *DB) popFault(method string) error {
	queue := d.faults[method]
	if len(queue) == 0 {
		return nil
	}
	d.faults[method] = queue[1:]
	return queue[0]
}

func checkViolation(constraint string) error {
	return &pq.Error{
		Code:       "23514",
		Message:    fmt.Sprintf("new row violates check constraint %q", constraint),
		Constraint: constraint,
	}
}
