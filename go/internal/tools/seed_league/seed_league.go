package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/leaguetimers/go/internal/dbconfig"
	"github.com/mcdev12/leaguetimers/go/internal/models"
)

// Seeds one demo league: managers with budgets, auctions ending over the next
// few minutes with bids, and one roster violation whose countdown has already
// run out, so the first sweep has work in every pass.
func main() {
	managers := flag.Int("managers", 4, "number of managers")
	auctions := flag.Int("auctions", 6, "number of auctions")
	budget := flag.String("budget", "200.00", "starting budget per manager")
	flag.Parse()

	ctx := context.Background()

	// 1) Connect to DB
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 2) Seed everything in one transaction
	leagueID := uuid.New()
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return seed(ctx, tx, leagueID, *managers, *auctions, *budget)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Seeded league %s: %d managers, %d auctions\n", leagueID, *managers, *auctions)
}

func seed(ctx context.Context, tx pgx.Tx, leagueID uuid.UUID, managers, auctions int, budget string) error {
	responseWindow := 15 * 60
	settings, err := json.Marshal(models.LeagueSettings{
		Timers: models.TimerSettings{ResponseWindowSec: &responseWindow},
	})
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO leagues (id, name, league_settings) VALUES ($1, $2, $3)`,
		leagueID, "Demo League", settings,
	); err != nil {
		return fmt.Errorf("insert league: %w", err)
	}

	users := make([]uuid.UUID, managers)
	batch := &pgx.Batch{}
	for i := range users {
		users[i] = uuid.New()
		batch.Queue(
			`INSERT INTO league_participants (league_id, user_id, current_budget, locked_credits) VALUES ($1, $2, $3::numeric, 0)`,
			leagueID, users[i], budget,
		)
	}

	now := time.Now().UTC()
	for i := 0; i < auctions; i++ {
		auctionID := uuid.New()
		batch.Queue(
			`INSERT INTO auctions (id, league_id, player_id, status, scheduled_end_time) VALUES ($1, $2, $3, 'active', $4)`,
			auctionID, leagueID, uuid.New(), now.Add(time.Duration(i)*time.Minute),
		)
		if len(users) == 0 {
			continue
		}
		for j := 0; j <= i%3 && j < len(users); j++ {
			batch.Queue(
				`INSERT INTO auction_bids (id, auction_id, user_id, amount, created_at) VALUES ($1, $2, $3, $4::numeric, $5)`,
				uuid.New(), auctionID, users[(i+j)%len(users)], fmt.Sprintf("%d.00", 5+5*j), now.Add(-time.Duration(10-j)*time.Second),
			)
		}
	}

	if len(users) > 0 {
		batch.Queue(
			`INSERT INTO user_league_compliance_status (id, league_id, user_id, phase, compliance_timer_start_at) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), leagueID, users[0], string(models.CompliancePhaseRoster), now.Add(-2*time.Hour),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed rows: %w", err)
	}
	return nil
}
