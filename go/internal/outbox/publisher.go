package outbox

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogPublisher only logs events. Used when no NATS URL is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event Event) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Str("aggregate_id", event.AggregateID.String()).
		RawJSON("payload", event.Payload).
		Msg("publishing event")
	return nil
}
