//go:build integration

package engine

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mcdev12/leaguetimers/go/internal/config"
	"github.com/mcdev12/leaguetimers/go/internal/db"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("leaguetimers"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(sqlDB))
	return sqlDB
}

func at(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func TestIntegration_ComplianceEndToEnd(t *testing.T) {
	sqlDB := setupPostgres(t)
	ctx := context.Background()

	leagueID, userID, statusID := uuid.New(), uuid.New(), uuid.New()
	_, err := sqlDB.ExecContext(ctx, `INSERT INTO leagues (id, name, league_settings) VALUES ($1, 'L', '{"timers":{"compliance_window_sec":3600,"penalty_amount":"25"}}')`, leagueID)
	require.NoError(t, err)
	_, err = sqlDB.ExecContext(ctx, `INSERT INTO league_participants (league_id, user_id, current_budget, locked_credits) VALUES ($1, $2, 100, 0)`, leagueID, userID)
	require.NoError(t, err)
	_, err = sqlDB.ExecContext(ctx, `INSERT INTO user_league_compliance_status (id, league_id, user_id, phase, compliance_timer_start_at) VALUES ($1, $2, $3, 'roster', $4)`,
		statusID, leagueID, userID, at(1000))
	require.NoError(t, err)

	e, err := New(db.NewStore(sqlDB), config.Default(), nil)
	require.NoError(t, err)

	res, err := e.Compliance.ProcessExpiredComplianceTimers(ctx, at(4599))
	require.NoError(t, err)
	assert.Zero(t, res.ProcessedCount)

	// overlapping sweeps must charge once
	var wg sync.WaitGroup
	counts := make([]int, 4)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := e.Compliance.ProcessExpiredComplianceTimers(ctx, at(5000))
			assert.NoError(t, err)
			counts[i] = r.ProcessedCount
		}(i)
	}
	wg.Wait()
	total := 0
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, 1, total)

	budget, err := e.Ledger.CurrentBudget(ctx, leagueID, userID)
	require.NoError(t, err)
	assert.Equal(t, "75", budget.String())

	var records int
	require.NoError(t, sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM penalty_records WHERE compliance_status_id = $1`, statusID).Scan(&records))
	assert.Equal(t, 1, records)

	var start sql.NullTime
	require.NoError(t, sqlDB.QueryRowContext(ctx, `SELECT compliance_timer_start_at FROM user_league_compliance_status WHERE id = $1`, statusID).Scan(&start))
	assert.False(t, start.Valid)

	var events int
	require.NoError(t, sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM engine_outbox WHERE event_type = 'PenaltyApplied'`).Scan(&events))
	assert.Equal(t, 1, events)
}

func TestIntegration_AuctionToPenalty(t *testing.T) {
	sqlDB := setupPostgres(t)
	ctx := context.Background()

	leagueID, userID, auctionID := uuid.New(), uuid.New(), uuid.New()
	_, err := sqlDB.ExecContext(ctx, `INSERT INTO leagues (id, name) VALUES ($1, 'L')`, leagueID)
	require.NoError(t, err)
	_, err = sqlDB.ExecContext(ctx, `INSERT INTO league_participants (league_id, user_id, current_budget, locked_credits) VALUES ($1, $2, 3, 0)`, leagueID, userID)
	require.NoError(t, err)
	_, err = sqlDB.ExecContext(ctx, `INSERT INTO auctions (id, league_id, player_id, status, scheduled_end_time) VALUES ($1, $2, $3, 'active', $4)`,
		auctionID, leagueID, uuid.New(), at(1000))
	require.NoError(t, err)
	_, err = sqlDB.ExecContext(ctx, `INSERT INTO auction_bids (id, auction_id, user_id, amount, created_at) VALUES ($1, $2, $3, 2, $4)`,
		uuid.New(), auctionID, userID, at(900))
	require.NoError(t, err)

	e, err := New(db.NewStore(sqlDB), config.Default(), nil)
	require.NoError(t, err)

	res, err := e.Sweep.Run(ctx, at(1000))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ClosedCount)

	res, err = e.Sweep.Run(ctx, at(4600))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredCount)

	res, err = e.Sweep.Run(ctx, at(8200))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ProcessedCount)
	require.Len(t, res.Errors, 1)

	budget, err := e.Ledger.CurrentBudget(ctx, leagueID, userID)
	require.NoError(t, err)
	assert.True(t, budget.IsZero())

	var shortfall string
	require.NoError(t, sqlDB.QueryRowContext(ctx, `SELECT shortfall::text FROM penalty_records WHERE league_id = $1`, leagueID).Scan(&shortfall))
	assert.Equal(t, "2.00", shortfall)
}

func TestIntegration_ConcurrentSweepsPenalizeEachStatusOnce(t *testing.T) {
	sqlDB := setupPostgres(t)
	ctx := context.Background()

	leagueID := uuid.New()
	_, err := sqlDB.ExecContext(ctx, `INSERT INTO leagues (id, name, league_settings) VALUES ($1, 'L', '{"timers":{"penalty_amount":"10"}}')`, leagueID)
	require.NoError(t, err)

	const users = 20
	for i := 0; i < users; i++ {
		userID := uuid.New()
		_, err = sqlDB.ExecContext(ctx, `INSERT INTO league_participants (league_id, user_id, current_budget, locked_credits) VALUES ($1, $2, 100, 0)`, leagueID, userID)
		require.NoError(t, err)
		_, err = sqlDB.ExecContext(ctx, `INSERT INTO user_league_compliance_status (id, league_id, user_id, phase, compliance_timer_start_at) VALUES ($1, $2, $3, 'roster', $4)`,
			uuid.New(), leagueID, userID, at(1000+int64(i)))
		require.NoError(t, err)
	}

	cfg := config.Default()
	cfg.Sweep.BatchSize = 3
	first, err := New(db.NewStore(sqlDB), cfg, nil)
	require.NoError(t, err)
	second, err := New(db.NewStore(sqlDB), cfg, nil)
	require.NoError(t, err)

	start := make(chan struct{})
	counts := make([]int, 2)
	var wg sync.WaitGroup
	for i, e := range []*Engine{first, second} {
		wg.Add(1)
		go func(i int, e *Engine) {
			defer wg.Done()
			<-start
			r, err := e.Compliance.ProcessExpiredComplianceTimers(ctx, at(9000))
			assert.NoError(t, err)
			assert.Empty(t, r.Errors)
			counts[i] = r.ProcessedCount
		}(i, e)
	}
	close(start)
	wg.Wait()
	assert.Equal(t, users, counts[0]+counts[1])

	var maxPerStatus, records int
	require.NoError(t, sqlDB.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(n), 0), COALESCE(SUM(n), 0)
		FROM (SELECT COUNT(*) AS n FROM penalty_records GROUP BY compliance_status_id) per_status`).Scan(&maxPerStatus, &records))
	assert.Equal(t, 1, maxPerStatus)
	assert.Equal(t, users, records)

	var budgets []string
	rows, err := sqlDB.QueryContext(ctx, `SELECT DISTINCT current_budget::text FROM league_participants WHERE league_id = $1`, leagueID)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var b string
		require.NoError(t, rows.Scan(&b))
		budgets = append(budgets, b)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"90.00"}, budgets)
}

func TestIntegration_MalformedLeagueAndFailingRowsDoNotBlockSweep(t *testing.T) {
	sqlDB := setupPostgres(t)
	ctx := context.Background()

	good, bad := uuid.New(), uuid.New()
	_, err := sqlDB.ExecContext(ctx, `INSERT INTO leagues (id, name) VALUES ($1, 'good')`, good)
	require.NoError(t, err)
	_, err = sqlDB.ExecContext(ctx, `INSERT INTO leagues (id, name, league_settings) VALUES ($1, 'bad', '{"timers":{"compliance_window_sec":"3600"}}')`, bad)
	require.NoError(t, err)

	goodUser, badUser := uuid.New(), uuid.New()
	for _, p := range []struct{ league, user uuid.UUID }{{good, goodUser}, {bad, badUser}} {
		_, err = sqlDB.ExecContext(ctx, `INSERT INTO league_participants (league_id, user_id, current_budget, locked_credits) VALUES ($1, $2, 100, 0)`, p.league, p.user)
		require.NoError(t, err)
	}
	// no participant row behind this one, so it fails on every pass
	_, err = sqlDB.ExecContext(ctx, `INSERT INTO user_league_compliance_status (id, league_id, user_id, phase, compliance_timer_start_at) VALUES ($1, $2, $3, 'roster', $4)`,
		uuid.New(), good, uuid.New(), at(500))
	require.NoError(t, err)
	for _, p := range []struct{ league, user uuid.UUID }{{bad, badUser}, {good, goodUser}} {
		_, err = sqlDB.ExecContext(ctx, `INSERT INTO user_league_compliance_status (id, league_id, user_id, phase, compliance_timer_start_at) VALUES ($1, $2, $3, 'roster', $4)`,
			uuid.New(), p.league, p.user, at(1000))
		require.NoError(t, err)
	}

	cfg := config.Default()
	cfg.Sweep.BatchSize = 1
	e, err := New(db.NewStore(sqlDB), cfg, nil)
	require.NoError(t, err)

	res, err := e.Compliance.ProcessExpiredComplianceTimers(ctx, at(5000))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ProcessedCount)
	assert.Len(t, res.Errors, 2)

	budget, err := e.Ledger.CurrentBudget(ctx, good, goodUser)
	require.NoError(t, err)
	assert.Equal(t, "95", budget.String())

	budget, err = e.Ledger.CurrentBudget(ctx, bad, badUser)
	require.NoError(t, err)
	assert.Equal(t, "100", budget.String())
}
