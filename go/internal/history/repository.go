// Package history persists finished participant results and closed session
// summaries. Closing a session also writes a RaceFinished row to the outbox
// in the same transaction so the relay can publish it to the event bus.
package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/mcdev12/typerace/go/internal/race/events"
	"github.com/mcdev12/typerace/go/internal/sqlutil"
)

// OutboxChannel is the LISTEN/NOTIFY channel the outbox relay listens on.
const OutboxChannel = "race_outbox_events"

const ensureRaceSQL = `
INSERT INTO races (id, status)
VALUES ($1::uuid, 'in_progress')
ON CONFLICT (id) DO NOTHING`

const upsertResultSQL = `
INSERT INTO race_results (race_id, user_id, wpm, accuracy, errors, elapsed_time, completed_at, replay_trace)
VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8)
ON CONFLICT (race_id, user_id) DO UPDATE SET
    wpm          = EXCLUDED.wpm,
    accuracy     = EXCLUDED.accuracy,
    errors       = EXCLUDED.errors,
    elapsed_time = EXCLUDED.elapsed_time,
    completed_at = EXCLUDED.completed_at,
    replay_trace = EXCLUDED.replay_trace`

const finalizeRaceSQL = `
INSERT INTO races (id, status, kind, text_id, winner_id, is_draw, started_at, ended_at,
                   average_rating, rank_tier, rating_changes, forfeited)
VALUES ($1::uuid, 'finished', $2, $3::uuid, $4::uuid, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
    status         = 'finished',
    kind           = EXCLUDED.kind,
    text_id        = EXCLUDED.text_id,
    winner_id      = EXCLUDED.winner_id,
    is_draw        = EXCLUDED.is_draw,
    started_at     = EXCLUDED.started_at,
    ended_at       = EXCLUDED.ended_at,
    average_rating = EXCLUDED.average_rating,
    rank_tier      = EXCLUDED.rank_tier,
    rating_changes = EXCLUDED.rating_changes,
    forfeited      = EXCLUDED.forfeited`

const insertOutboxSQL = `
INSERT INTO race_outbox (id, race_id, event_type, payload)
VALUES ($1::uuid, $2::uuid, $3, $4)`

const notifySQL = `SELECT pg_notify($1, $2)`

type Repository struct {
	db sqlutil.TxStarter
}

func NewRepository(db sqlutil.TxStarter) *Repository {
	return &Repository{db: db}
}

// RecordParticipantResult stores one participant's finish. Retries overwrite
// the previous attempt.
func (r *Repository) RecordParticipantResult(ctx context.Context, sessionID, userID string, res race.ParticipantResult) error {
	trace, err := json.Marshal(nonNil(res.ReplayTrace))
	if err != nil {
		return fmt.Errorf("failed to marshal replay trace: %w", err)
	}

	return sqlutil.RunTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensureRaceSQL, sessionID); err != nil {
			return fmt.Errorf("failed to ensure race %s: %w", sessionID, err)
		}
		if _, err := tx.Exec(ctx, upsertResultSQL,
			sessionID, userID, res.WPM, res.Accuracy, res.Errors, res.ElapsedTime,
			res.CompletedAt, trace,
		); err != nil {
			return fmt.Errorf("failed to record result for user %s: %w", userID, err)
		}
		return nil
	})
}

// FinalizeSession writes the session summary and enqueues a RaceFinished
// outbox event atomically.
func (r *Repository) FinalizeSession(ctx context.Context, sessionID string, s race.SessionSummary) error {
	changes, err := json.Marshal(nonNil(s.RatingChanges))
	if err != nil {
		return fmt.Errorf("failed to marshal rating changes: %w", err)
	}
	payload, err := json.Marshal(events.NewRaceFinishedPayload(sessionID, s))
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	var avg *int
	var tier *string
	if s.Kind == race.KindRanked {
		avg, tier = &s.AverageRating, &s.RankTier
	}
	outboxID := uuid.New().String()

	return sqlutil.RunTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, finalizeRaceSQL,
			sessionID, string(s.Kind), s.TextID, s.WinnerID, s.IsDraw, s.StartedAt, s.EndedAt,
			avg, tier, changes, nonNil(s.Forfeited),
		); err != nil {
			return fmt.Errorf("failed to finalize race %s: %w", sessionID, err)
		}
		if _, err := tx.Exec(ctx, insertOutboxSQL, outboxID, sessionID, events.OutboxRaceFinished, payload); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
		// delivered on commit
		if _, err := tx.Exec(ctx, notifySQL, OutboxChannel, outboxID); err != nil {
			return fmt.Errorf("failed to notify outbox: %w", err)
		}
		return nil
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
