package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// NotifyChannel is the channel the engine_outbox insert trigger notifies on.
const NotifyChannel = "engine_outbox_events"

type ListenerConfig struct {
	DatabaseURL  string        `yaml:"-"`
	Channel      string        `yaml:"channel"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		Channel:      NotifyChannel,
		PingInterval: 90 * time.Second,
	}
}

// Listener wakes a Worker whenever Postgres reports a new outbox row, so events
// leave well before the next poll.
type Listener struct {
	listener *pq.Listener
	worker   *Worker
	cfg      ListenerConfig
}

func NewListener(worker *Worker, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("outbox listener event")
			}
		},
	)
	if err := l.Listen(cfg.Channel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().Str("channel", cfg.Channel).Msg("listening for outbox notifications")
	return &Listener{listener: l, worker: worker, cfg: cfg}, nil
}

// Start blocks until ctx is done.
func (l *Listener) Start(ctx context.Context) error {
	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outbox listener shutting down")
			return l.listener.Close()
		case note := <-l.listener.Notify:
			// nil means the connection was re-established; rows may have been missed
			if note != nil {
				log.Debug().Str("event_id", note.Extra).Msg("outbox notification")
			}
			l.worker.Notify()
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping outbox listener")
			}
		}
	}
}
