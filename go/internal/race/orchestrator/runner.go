package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/mcdev12/typerace/go/internal/race/events"
	"github.com/mcdev12/typerace/go/internal/race/rating"
	"github.com/mcdev12/typerace/go/internal/race/session"
	"github.com/mcdev12/typerace/go/internal/race/stats"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// runSession owns the session from formation to eviction. Completions are
// handled one at a time in the order the session accepted them, and the
// session closes only after every accepted completion has been persisted.
func (o *Orchestrator) runSession(s *session.Session) {
	defer o.wg.Done()

	timer := o.clock.NewTimer(s.LastActivity().Add(o.cfg.IdleTimeout).Sub(o.clock.Now()))
	defer stopAndDrainTimer(timer)

	total := len(s.UserIDs())
	persisted := 0

	for {
		select {
		case <-o.ctx.Done():
			log.Warn().Str("session_id", s.ID).Msg("session abandoned on shutdown")
			return

		case userID := <-s.Completions():
			o.persistCompletion(s, userID)
			persisted++
			if persisted == total {
				o.closeSession(s, false)
				return
			}

		case <-timer.Chan():
			deadline := s.LastActivity().Add(o.cfg.IdleTimeout)
			if now := o.clock.Now(); now.Before(deadline) {
				timer.Reset(deadline.Sub(now))
				continue
			}
			log.Info().
				Str("session_id", s.ID).
				Dur("idle_timeout", o.cfg.IdleTimeout).
				Msg("session idle, closing with forfeit")
			o.closeSession(s, true)
			return
		}
	}
}

// closeSession moves the session to Closed, scores it, applies ratings,
// persists the summary, emits results and evicts it.
func (o *Orchestrator) closeSession(s *session.Session, idle bool) {
	now := o.clock.Now()
	if !s.Close(now) {
		return
	}

	// Completions accepted before Close still need persisting.
	for drained := false; !drained; {
		select {
		case userID := <-s.Completions():
			o.persistCompletion(s, userID)
		default:
			drained = true
		}
	}

	outcome := s.Score()
	participants := s.Participants()

	var changes []race.RatingChange
	if s.Kind == race.KindRanked && len(participants) == 2 && len(outcome.Forfeited) < 2 {
		changes = ratingChanges(participants, outcome)
		for _, ch := range changes {
			ch := ch
			o.persist(s.ID, ch.UserID, "apply rating update", func(ctx context.Context) error {
				return o.accounts.ApplyRatingUpdate(ctx, ch.UserID, race.RatingUpdate{
					NewRating: ch.NewRating,
					RankTier:  rating.TierFor(ch.NewRating),
					Outcome:   ch.Outcome,
				})
			})
		}
	}

	if outcome.WinnerID != nil {
		winner := *outcome.WinnerID
		o.persist(s.ID, winner, "record win", func(ctx context.Context) error {
			return o.accounts.ApplyStatsUpdate(ctx, winner, stats.Win())
		})
	}

	summary := race.SessionSummary{
		Kind:          s.Kind,
		TextID:        s.Text.ID,
		WinnerID:      outcome.WinnerID,
		IsDraw:        outcome.IsDraw,
		StartedAt:     s.ScheduledStart,
		EndedAt:       now,
		Forfeited:     outcome.Forfeited,
		RatingChanges: changes,
		AverageRating: s.AverageRating,
		RankTier:      s.RankTier,
	}
	o.persist(s.ID, "", "finalize session", func(ctx context.Context) error {
		return o.history.FinalizeSession(ctx, s.ID, summary)
	})

	forfeited := lo.Keyify(outcome.Forfeited)
	o.notifier.BroadcastToSession(s.ID, events.NewSessionResults(events.SessionResults{
		SessionID: s.ID,
		Kind:      s.Kind,
		Participants: lo.Map(participants, func(p session.Participant, _ int) events.ResultParticipant {
			_, gone := forfeited[p.UserID]
			return events.ResultParticipant{
				UserID:      p.UserID,
				DisplayName: p.DisplayName,
				WPM:         p.WPM,
				Accuracy:    p.Accuracy,
				Errors:      p.Errors,
				ElapsedTime: p.ElapsedTime,
				CompletedAt: p.CompletedAt,
				Forfeited:   gone,
			}
		}),
		WinnerID:      outcome.WinnerID,
		IsDraw:        outcome.IsDraw,
		RatingChanges: changes,
		Forfeited:     outcome.Forfeited,
	}), "")

	o.notifier.LeaveSession(s.ID)
	o.sessions.Remove(s.ID)
	o.matchmaker.Release(s.UserIDs()...)

	ev := log.Info().
		Str("session_id", s.ID).
		Str("kind", string(s.Kind)).
		Bool("draw", outcome.IsDraw).
		Bool("idle", idle).
		Strs("forfeited", outcome.Forfeited)
	if outcome.WinnerID != nil {
		ev = ev.Str("winner_id", *outcome.WinnerID)
	}
	ev.Msg("session closed")
}

// persistCompletion writes one participant's result and folds it into their stats.
func (o *Orchestrator) persistCompletion(s *session.Session, userID string) {
	p, ok := s.Participant(userID)
	if !ok || p.CompletedAt == nil {
		return
	}

	result := race.ParticipantResult{
		WPM:         p.WPM,
		Accuracy:    p.Accuracy,
		Errors:      p.Errors,
		ElapsedTime: p.ElapsedTime,
		CompletedAt: *p.CompletedAt,
		ReplayTrace: p.ReplayTrace,
	}
	o.persist(s.ID, userID, "record participant result", func(ctx context.Context) error {
		return o.history.RecordParticipantResult(ctx, s.ID, userID, result)
	})
	o.persist(s.ID, userID, "apply stats update", func(ctx context.Context) error {
		acct, err := o.accounts.FindUserByID(ctx, userID)
		if err != nil {
			return err
		}
		return o.accounts.ApplyStatsUpdate(ctx, userID, stats.Next(acct.Stats, p.WPM))
	})
}

// persist runs fn with linear backoff. Once retries are exhausted the failure
// is logged as race.ErrPersistence and the session carries on.
func (o *Orchestrator) persist(sessionID, userID, op string, fn func(ctx context.Context) error) {
	var lastErr error

	for attempt := 0; attempt <= o.cfg.PersistRetries; attempt++ {
		if attempt > 0 && o.cfg.PersistRetryDelay > 0 {
			select {
			case <-o.ctx.Done():
				return
			case <-o.clock.After(o.cfg.PersistRetryDelay * time.Duration(attempt)):
			}
		}

		if lastErr = fn(o.ctx); lastErr == nil {
			if attempt > 0 {
				log.Info().
					Str("session_id", sessionID).
					Str("op", op).
					Int("attempt", attempt+1).
					Msg("persist succeeded after retry")
			}
			return
		}
		if errors.Is(lastErr, race.ErrNotFound) || errors.Is(lastErr, context.Canceled) {
			break
		}
		log.Warn().
			Err(lastErr).
			Str("session_id", sessionID).
			Str("op", op).
			Int("attempt", attempt+1).
			Msg("persist failed, retrying")
	}

	log.Error().
		Err(fmt.Errorf("%s: %w: %w", op, race.ErrPersistence, lastErr)).
		Str("session_id", sessionID).
		Str("user_id", userID).
		Msg("persistence failure")
}

// ratingChanges computes both sides of a two-player ranked result, each from
// its own pre-match rating.
func ratingChanges(participants []session.Participant, outcome session.Outcome) []race.RatingChange {
	outcomeFor := func(userID string) race.Outcome {
		switch {
		case outcome.IsDraw:
			return race.OutcomeDraw
		case outcome.WinnerID != nil && *outcome.WinnerID == userID:
			return race.OutcomeWin
		default:
			return race.OutcomeLoss
		}
	}

	a, b := participants[0], participants[1]
	return lo.Map([][2]session.Participant{{a, b}, {b, a}}, func(pair [2]session.Participant, _ int) race.RatingChange {
		self, opp := pair[0], pair[1]
		res := outcomeFor(self.UserID)
		delta := rating.Delta(self.Rating, opp.Rating, res.Score())
		return race.RatingChange{
			UserID:    self.UserID,
			OldRating: self.Rating,
			NewRating: self.Rating + delta,
			Change:    delta,
			Outcome:   res,
		}
	})
}

// stopAndDrainTimer safely stops a timer and drains its channel.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
