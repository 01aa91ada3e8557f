package memdb

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcdev12/leaguetimers/go/internal/db"
)

func (d *DB) AddLeague(id uuid.UUID, settings json.RawMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if settings == nil {
		settings = json.RawMessage(`{}`)
	}
	d.state.leagues[id] = settings
}

func (d *DB) AddParticipant(leagueID, userID uuid.UUID, budget, locked decimal.Decimal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.participants[memberKey{leagueID, userID}] = db.LeagueParticipant{
		LeagueID:      leagueID,
		UserID:        userID,
		CurrentBudget: budget,
		LockedCredits: locked,
		UpdatedAt:     d.clock.Now(),
	}
}

func (d *DB) AddAuction(a db.Auction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = d.clock.Now()
	}
	d.state.auctions[a.ID] = a
}

func (d *DB) AddBid(b db.AuctionBid) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = d.clock.Now()
	}
	d.state.bids = append(d.state.bids, b)
}

func (d *DB) AddResponseTimer(t db.UserAuctionResponseTimer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = d.clock.Now()
	}
	d.state.timers[t.ID] = t
}

// AddComplianceStatus seeds a status row. A nil start means compliant.
func (d *DB) AddComplianceStatus(id, leagueID, userID uuid.UUID, phase string, startAt *time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	row := db.UserLeagueComplianceStatus{
		ID:        id,
		LeagueID:  leagueID,
		UserID:    userID,
		Phase:     phase,
		UpdatedAt: d.clock.Now(),
	}
	if startAt != nil {
		row.ComplianceTimerStartAt = sql.NullTime{Time: *startAt, Valid: true}
	}
	d.state.compliance[id] = row
}

// PenaltyRecords returns every stored record in insertion order.
func (d *DB) PenaltyRecords() []db.PenaltyRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]db.PenaltyRecord(nil), d.state.penalties...)
}

// Outbox returns every stored event in insertion order.
func (d *DB) Outbox() []db.EngineOutbox {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]db.EngineOutbox(nil), d.state.outbox...)
}
