package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/mcdev12/typerace/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

const fetchOutboxByIDSQL = `
SELECT id, race_id, event_type, payload, headers, created_at, sent_at
FROM race_outbox
WHERE id = $1 AND sent_at IS NULL`

const fetchUnsentOutboxSQL = `
SELECT id, race_id, event_type, payload, headers, created_at, sent_at
FROM race_outbox
WHERE sent_at IS NULL
ORDER BY created_at
LIMIT $1`

const markOutboxSentSQL = `UPDATE race_outbox SET sent_at = now() WHERE id = $1`

const countPendingSQL = `SELECT COUNT(*) FROM race_outbox WHERE sent_at IS NULL`

type rowScanner interface {
	Scan(dest ...any) error
}

// Repository reads race_outbox over database/sql.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	ev, err := scanEvent(r.db.QueryRowContext(ctx, fetchOutboxByIDSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("outbox event %s not found or already sent: %w", id, race.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return ev, nil
}

func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, fetchUnsentOutboxSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, markOutboxSentSQL, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *Repository) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, countPendingSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return count, nil
}

func scanEvent(row rowScanner) (*OutboxEvent, error) {
	var (
		ev      OutboxEvent
		payload []byte
		headers pqtype.NullRawMessage
		sentAt  sql.NullTime
	)
	if err := row.Scan(&ev.ID, &ev.RaceID, &ev.EventType, &payload, &headers, &ev.CreatedAt, &sentAt); err != nil {
		return nil, err
	}
	ev.Payload = payload
	ev.SentAt = sqlutil.FromSqlTime(sentAt)

	h, err := decodeHeaders(headers)
	if err != nil {
		return nil, fmt.Errorf("outbox event %s: %w", ev.ID, err)
	}
	ev.Headers = h
	return &ev, nil
}

func decodeHeaders(raw pqtype.NullRawMessage) (map[string]string, error) {
	if !raw.Valid || len(raw.RawMessage) == 0 {
		return nil, nil
	}
	var h map[string]string
	if err := json.Unmarshal(raw.RawMessage, &h); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	return h, nil
}
