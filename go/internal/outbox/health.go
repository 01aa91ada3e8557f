package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguetimers/go/internal/db"
)

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	DatabaseConnected bool      `json:"database_connected"`
	BrokerConnected   bool      `json:"broker_connected"`
	PendingEvents     int64     `json:"pending_events"`
	EventsPublished   uint64    `json:"events_published"`
	LastRun           time.Time `json:"last_run"`
	Errors            []string  `json:"errors"`
}

// BrokerStatus reports whether the publisher's broker connection is up
type BrokerStatus interface {
	Connected() bool
}

// HealthChecker reports relay health. The relay is unhealthy when storage is
// unreachable, the broker is down, or unsent rows exist and no pass has
// finished within threshold.
type HealthChecker struct {
	worker    *Worker
	store     db.Store
	broker    BrokerStatus
	clock     clockwork.Clock
	threshold time.Duration
}

func NewHealthChecker(worker *Worker, store db.Store, broker BrokerStatus, clock clockwork.Clock, threshold time.Duration) *HealthChecker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthChecker{
		worker:    worker,
		store:     store,
		broker:    broker,
		clock:     clock,
		threshold: threshold,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:           true,
		DatabaseConnected: true,
		BrokerConnected:   true,
		Errors:            []string{},
	}
	status.EventsPublished, status.LastRun = h.worker.Stats()

	pending, err := h.store.CountUnsentOutbox(ctx)
	if err != nil {
		status.Healthy = false
		status.DatabaseConnected = false
		status.Errors = append(status.Errors, "database: "+err.Error())
	}
	status.PendingEvents = pending

	if h.broker != nil && !h.broker.Connected() {
		status.Healthy = false
		status.BrokerConnected = false
		status.Errors = append(status.Errors, "broker: not connected")
	}

	if pending > 0 && h.clock.Since(status.LastRun) > h.threshold {
		status.Healthy = false
		status.Errors = append(status.Errors, "relay: unsent events are not draining")
	}
	return status
}

// ServeHTTP writes the health status as JSON, with 503 when unhealthy.
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}
