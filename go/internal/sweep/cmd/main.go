package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguetimers/go/internal/api"
	"github.com/mcdev12/leaguetimers/go/internal/config"
	"github.com/mcdev12/leaguetimers/go/internal/db"
	"github.com/mcdev12/leaguetimers/go/internal/dbconfig"
	"github.com/mcdev12/leaguetimers/go/internal/engine"
	"github.com/mcdev12/leaguetimers/go/internal/sweep"
)

// One sweep per invocation, for cron. Prints the aggregate result as JSON and
// exits non-zero when the sweep aborted.
func main() {
	configPath := flag.String("config", config.Path(), "engine config file")
	remote := flag.String("remote", "", "engine API base URL; sweeps locally against the database when empty")
	nowFlag := flag.String("now", "", "sweep instant (RFC3339); defaults to the current time. Remote servers need server.allow_now_override")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	// stdout carries the result
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var now *time.Time
	if *nowFlag != "" {
		t, err := time.Parse(time.RFC3339, *nowFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid -now")
		}
		now = &t
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		res sweep.Result
		err error
	)
	if *remote != "" {
		res, err = runRemote(ctx, *remote, now)
	} else {
		res, err = runLocal(ctx, *configPath, now)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(res); encErr != nil {
		log.Error().Err(encErr).Msg("failed to write result")
	}
	if err != nil {
		log.Error().Err(err).Msg("sweep aborted")
		os.Exit(1)
	}
}

func runRemote(ctx context.Context, baseURL string, now *time.Time) (sweep.Result, error) {
	client := api.NewClient(&http.Client{Timeout: 5 * time.Minute}, baseURL)
	res, err := client.RunSweep(ctx, &api.SweepRequest{Now: now})
	if err != nil {
		if partial, ok := api.PartialResult[api.RunSweepResponse](err); ok {
			return *partial, err
		}
		return sweep.Result{}, err
	}
	return *res, nil
}

func runLocal(ctx context.Context, configPath string, now *time.Time) (sweep.Result, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return sweep.Result{}, err
	}
	database, err := dbconfig.NewConfigFromEnv().Open(ctx)
	if err != nil {
		return sweep.Result{}, err
	}
	defer database.Close()

	clock := clockwork.NewRealClock()
	e, err := engine.New(db.NewStore(database), cfg, clock)
	if err != nil {
		return sweep.Result{}, err
	}
	at := clock.Now().UTC()
	if now != nil {
		at = now.UTC()
	}
	return e.Sweep.Run(ctx, at)
}
