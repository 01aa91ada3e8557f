package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguetimers/go/internal/db"
	"github.com/mcdev12/leaguetimers/go/internal/sqlutil"
)

// Record writes an event using q so it commits or rolls back with the state change
// that produced it. aggregateID is the league the event belongs to.
func Record(ctx context.Context, q db.Querier, aggregateID uuid.UUID, eventType string, payload any) error {
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	id := uuid.New()
	if err := q.InsertOutboxEvent(ctx, db.InsertOutboxEventParams{
		ID:          id,
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     data,
	}); err != nil {
		return fmt.Errorf("failed to insert %s event: %w", eventType, sqlutil.Classify(err))
	}

	log.Debug().
		Str("event_id", id.String()).
		Str("aggregate_id", aggregateID.String()).
		Str("event_type", eventType).
		Msg("outbox event inserted")
	return nil
}
