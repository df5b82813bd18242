package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is one row of race_outbox.
type OutboxEvent struct {
	ID        uuid.UUID
	RaceID    uuid.UUID
	EventType string
	Payload   []byte
	Headers   map[string]string
	CreatedAt time.Time
	SentAt    *time.Time
}

// Publisher delivers an outbox event to the event bus.
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// Store is the outbox table as the relay sees it.
type Store interface {
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	FetchUnsentOutbox(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
	CountPending(ctx context.Context) (int, error)
}
