package orchestrator

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/mcdev12/typerace/go/internal/race/events"
	"github.com/mcdev12/typerace/go/internal/race/matchmaker"
	"github.com/mcdev12/typerace/go/internal/race/rating"
	"github.com/mcdev12/typerace/go/internal/race/session"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// formSession turns a match into a registered, running session. Any failure
// cancels the match and tells every matched user so nobody is left waiting.
func (o *Orchestrator) formSession(ctx context.Context, m matchmaker.Match) {
	now := o.clock.Now()

	text, err := o.texts.FindTextByDifficulty(ctx, o.cfg.TextDifficulty)
	if err != nil {
		o.cancelMatch(m, "no race text available", err)
		return
	}

	participants := make([]session.Participant, 0, len(m.Entries))
	for _, e := range m.Entries {
		acct, err := o.accounts.FindUserByID(ctx, e.UserID)
		if err != nil {
			o.cancelMatch(m, "could not load participant", err)
			return
		}
		r := acct.Rating
		if m.Queue == race.QueueRanked {
			r = e.Rating
		}
		participants = append(participants, session.Participant{
			UserID:      e.UserID,
			ConnID:      e.ConnID,
			Username:    acct.Username,
			DisplayName: lo.CoalesceOrEmpty(acct.DisplayName, acct.Username, "Unknown"),
			Rating:      r,
		})
	}

	params := session.Params{
		ID:             uuid.NewString(),
		Kind:           m.Queue.Kind(),
		Text:           text,
		Participants:   participants,
		CreatedAt:      now,
		ScheduledStart: now.Add(o.cfg.Countdown),
	}
	if m.Queue == race.QueueRanked {
		total := lo.SumBy(m.Entries, func(e matchmaker.Entry) int { return e.Rating })
		params.AverageRating = int(math.Round(float64(total) / float64(len(m.Entries))))
		params.RankTier = rating.TierFor(m.Initiator.Rating)
	}

	s, err := session.New(params)
	if err != nil {
		o.cancelMatch(m, "invalid session", err)
		return
	}
	if err := o.sessions.Add(s); err != nil {
		o.cancelMatch(m, "participant already racing", err)
		return
	}

	for _, e := range m.Entries {
		o.waits.Record(now.Sub(e.JoinedAt))
	}

	o.notifier.JoinSession(s.ID, s.UserIDs())
	o.notifier.BroadcastToSession(s.ID, events.NewSessionMatched(events.SessionMatched{
		SessionID: s.ID,
		Text:      text.Content,
		Participants: lo.Map(participants, func(p session.Participant, _ int) events.ParticipantInfo {
			return events.ParticipantInfo{UserID: p.UserID, Username: p.Username, DisplayName: p.DisplayName}
		}),
		ScheduledStart: s.ScheduledStart,
		Kind:           s.Kind,
	}), "")

	o.wg.Add(1)
	go o.runSession(s)

	log.Info().
		Str("session_id", s.ID).
		Str("kind", string(s.Kind)).
		Strs("participants", s.UserIDs()).
		Str("text_id", text.ID).
		Time("scheduled_start", s.ScheduledStart).
		Msg("session formed")
}

func (o *Orchestrator) cancelMatch(m matchmaker.Match, reason string, err error) {
	ids := m.UserIDs()
	log.Error().
		Err(err).
		Str("queue", string(m.Queue)).
		Strs("participants", ids).
		Msg("match cancelled")

	o.matchmaker.Release(ids...)
	for _, id := range ids {
		o.notifier.SendToUser(id, events.NewMatchCancelled(reason))
	}
}
