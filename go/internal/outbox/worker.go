package outbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguetimers/go/internal/db"
)

type Config struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int32         `yaml:"batch_size"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

// Worker relays unsent outbox rows to a publisher.
type Worker struct {
	store     db.Store
	publisher EventPublisher
	config    Config
	clock     clockwork.Clock

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wake     chan struct{}
	wg       sync.WaitGroup

	published atomic.Uint64
	lastRun   atomic.Int64
}

func NewWorker(store db.Store, publisher EventPublisher, cfg Config, clock clockwork.Clock) *Worker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Worker{
		store:     store,
		publisher: publisher,
		config:    cfg,
		clock:     clock,
		stopChan:  make(chan struct{}),
		wake:      make(chan struct{}, 1),
	}
}

// Notify asks the running worker for an immediate pass. Calls made while a
// pass is already queued are dropped.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Stats reports how many events were published and when the last pass finished.
func (w *Worker) Stats() (uint64, time.Time) {
	var last time.Time
	if ns := w.lastRun.Load(); ns != 0 {
		last = time.Unix(0, ns).UTC()
	}
	return w.published.Load(), last
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int32("batch_size", w.config.BatchSize).
		Msg("outbox worker started")
	return nil
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	log.Info().Msg("outbox worker stopped")
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	if _, err := w.ProcessOnce(ctx); err != nil {
		log.Error().Err(err).Msg("outbox relay failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.Chan():
			if _, err := w.ProcessOnce(ctx); err != nil {
				log.Error().Err(err).Msg("outbox relay failed")
			}
		case <-w.wake:
			if _, err := w.ProcessOnce(ctx); err != nil {
				log.Error().Err(err).Msg("outbox relay failed")
			}
		}
	}
}

// ProcessOnce publishes one batch and marks the published rows sent.
// Rows that fail to publish stay unsent for the next pass.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	var published int
	err := w.store.InTx(ctx, func(q db.Querier) error {
		rows, err := q.FetchUnsentOutbox(ctx, w.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to fetch unsent events: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		var successfulIDs []uuid.UUID
		for _, row := range rows {
			event := Event{
				ID:          row.ID,
				AggregateID: row.AggregateID,
				EventType:   row.EventType,
				Payload:     row.Payload,
				CreatedAt:   row.CreatedAt,
			}
			if err := w.publishWithRetry(ctx, event); err != nil {
				log.Error().Err(err).
					Str("event_id", event.ID.String()).
					Str("event_type", event.EventType).
					Msg("failed to publish event")
				continue
			}
			successfulIDs = append(successfulIDs, event.ID)
		}

		if len(successfulIDs) > 0 {
			if err := q.MarkOutboxSent(ctx, db.MarkOutboxSentParams{
				IDs:    successfulIDs,
				SentAt: w.clock.Now(),
			}); err != nil {
				return fmt.Errorf("failed to mark events as sent: %w", err)
			}
		}
		published = len(successfulIDs)

		log.Info().
			Int("total", len(rows)).
			Int("successful", published).
			Msg("processed outbox events")
		return nil
	})
	if err != nil {
		return 0, err
	}
	w.published.Add(uint64(published))
	w.lastRun.Store(w.clock.Now().UnixNano())
	return published, nil
}

func (w *Worker) publishWithRetry(ctx context.Context, event Event) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.clock.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := w.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().Err(err).
				Str("event_id", event.ID.String()).
				Int("attempt", attempt+1).
				Msg("failed to publish event, retrying")
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}
