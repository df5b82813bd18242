package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	LastEventTime     time.Time `json:"last_event_time"`
	EventsProcessed   uint64    `json:"events_processed"`
	PendingEvents     int       `json:"pending_events"`
	DatabaseConnected bool      `json:"database_connected"`
	NATSConnected     bool      `json:"nats_connected"`
	ListenerActive    bool      `json:"listener_active"`
	Errors            []string  `json:"errors"`
}

type relayStats interface {
	Stats() (uint64, time.Time)
	Running() bool
}

type pinger interface {
	PingContext(ctx context.Context) error
}

type busConn interface {
	Connected() bool
}

// HealthChecker reports whether the relay is keeping up.
type HealthChecker struct {
	relay     relayStats
	db        pinger
	bus       busConn
	store     Store
	threshold time.Duration // How long pending events may sit without progress
	now       func() time.Time
}

func NewHealthChecker(relay relayStats, db pinger, bus busConn, store Store, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		relay:     relay,
		db:        db,
		bus:       bus,
		store:     store,
		threshold: threshold,
		now:       time.Now,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	status.EventsProcessed, status.LastEventTime = h.relay.Stats()

	if err := h.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.bus != nil {
		status.NATSConnected = h.bus.Connected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	status.ListenerActive = h.relay.Running()
	if !status.ListenerActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "listener not active")
	}

	if status.DatabaseConnected {
		pending, err := h.store.CountPending(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
		}
	}

	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() {
		if since := h.now().Sub(status.LastEventTime); since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", since))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health status")
	}
}
