package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/leaguetimers/go/internal/config"
	"github.com/mcdev12/leaguetimers/go/internal/db"
	"github.com/mcdev12/leaguetimers/go/internal/dbconfig"
	"github.com/mcdev12/leaguetimers/go/internal/outbox"
)

func main() {
	configPath := flag.String("config", config.Path(), "engine config file")
	flag.Parse()

	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// configure zerolog console output and level
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.NATS.URL = url
		cfg.NATS.Enabled = true
	}

	// signal‐aware context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg := dbconfig.NewConfigFromEnv()
	database, err := dbCfg.Open(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer database.Close()
	store := db.NewStore(database)

	var (
		publisher outbox.EventPublisher = outbox.LogPublisher{}
		broker    outbox.BrokerStatus
	)
	if cfg.NATS.Enabled {
		js, err := outbox.NewJetStreamPublisher(ctx, cfg.NATS.JetStreamConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create JetStream publisher")
		}
		defer func() {
			if err := js.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close publisher")
			}
		}()
		publisher, broker = js, js
	} else {
		log.Warn().Msg("NATS disabled, events will only be logged")
	}

	clock := clockwork.NewRealClock()
	worker := outbox.NewWorker(store, publisher, cfg.Outbox.Config, clock)
	health := outbox.NewHealthChecker(worker, store, broker, clock, 3*cfg.Outbox.PollInterval)

	mux := http.NewServeMux()
	mux.Handle("/health", health)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Outbox.HealthPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := worker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start outbox worker")
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Outbox.Listen {
		listenerCfg := cfg.Outbox.Listener
		listenerCfg.DatabaseURL = dbCfg.DSN()
		listener, err := outbox.NewListener(worker, listenerCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create outbox listener")
		}
		g.Go(func() error {
			return listener.Start(gctx)
		})
	}
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("outbox health endpoint listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if stopErr := worker.Stop(); stopErr != nil {
		log.Error().Err(stopErr).Msg("failed to stop outbox worker")
	}
	if err != nil {
		log.Error().Err(err).Msg("outbox relay exited unexpectedly")
		os.Exit(1)
	}
	log.Info().Msg("graceful shutdown complete")
}
