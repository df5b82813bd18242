// Package orchestrator is the single authority over matchmaking and live races
// in this process. Queue mutations go through the matchmaker, and every formed
// session gets its own runner goroutine that serializes completions, persists
// them, and closes the session exactly once.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/mcdev12/typerace/go/internal/race/config"
	"github.com/mcdev12/typerace/go/internal/race/events"
	"github.com/mcdev12/typerace/go/internal/race/matchmaker"
	"github.com/mcdev12/typerace/go/internal/race/session"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
	After(d time.Duration) <-chan time.Time
}

// AccountStore reads and updates user accounts.
type AccountStore interface {
	FindUserByID(ctx context.Context, id string) (race.Account, error)
	ApplyStatsUpdate(ctx context.Context, userID string, u race.StatsUpdate) error
	ApplyRatingUpdate(ctx context.Context, userID string, u race.RatingUpdate) error
}

// TextProvider supplies race passages.
type TextProvider interface {
	FindTextByDifficulty(ctx context.Context, difficulty string) (race.Text, error)
}

// HistoryStore persists race results.
type HistoryStore interface {
	RecordParticipantResult(ctx context.Context, sessionID, userID string, r race.ParticipantResult) error
	FinalizeSession(ctx context.Context, sessionID string, s race.SessionSummary) error
}

// Notifier delivers events to connected users.
type Notifier interface {
	SendToUser(userID string, ev events.Event)
	BroadcastToSession(sessionID string, ev events.Event, exceptUserID string)
	JoinSession(sessionID string, userIDs []string)
	LeaveSession(sessionID string)
}

// QueueStats is a point-in-time view for operators.
type QueueStats struct {
	CasualWaiting  int     `json:"casualWaiting"`
	RankedWaiting  int     `json:"rankedWaiting"`
	OpenLobbies    int     `json:"openLobbies"`
	ActiveSessions int     `json:"activeSessions"`
	AvgWaitSeconds float64 `json:"avgWaitSeconds"`
}

type Orchestrator struct {
	cfg      config.Race
	clock    Clock
	accounts AccountStore
	texts    TextProvider
	history  HistoryStore
	notifier Notifier

	matchmaker *matchmaker.Matchmaker
	sessions   *session.Store
	waits      *matchmaker.WaitTracker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator. Session runners live until Shutdown.
func New(cfg config.Race, clock Clock, accounts AccountStore, texts TextProvider, history HistoryStore, notifier Notifier) *Orchestrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		clock:      clock,
		accounts:   accounts,
		texts:      texts,
		history:    history,
		notifier:   notifier,
		matchmaker: matchmaker.New(clock, cfg.RankedWindow),
		sessions:   session.NewStore(),
		waits:      matchmaker.NewWaitTracker(cfg.WaitWindow, cfg.WaitFloor),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Shutdown stops all session runners and waits for them, bounded by ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session runners still active: %w", ctx.Err())
	}
}

// JoinCasualQueue queues the user for FIFO pairing.
func (o *Orchestrator) JoinCasualQueue(ctx context.Context, connID, userID string) error {
	m, err := o.matchmaker.JoinCasual(connID, userID)
	return o.afterJoin(ctx, race.QueueCasual, userID, m, err)
}

// LeaveCasualQueue removes the user from the casual queue.
func (o *Orchestrator) LeaveCasualQueue(userID string) {
	if o.matchmaker.LeaveCasual(userID) {
		log.Debug().Str("user_id", userID).Msg("left casual queue")
	}
}

// JoinRankedQueue queues the user with their stored rating.
func (o *Orchestrator) JoinRankedQueue(ctx context.Context, connID, userID string) error {
	if o.matchmaker.Engaged(userID) {
		return race.ErrAlreadyInSession
	}
	acct, err := o.accounts.FindUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load rating: %w", err)
	}

	m, err := o.matchmaker.JoinRanked(connID, userID, acct.Rating)
	return o.afterJoin(ctx, race.QueueRanked, userID, m, err)
}

// LeaveRankedQueue removes the user from the ranked queue.
func (o *Orchestrator) LeaveRankedQueue(userID string) {
	if o.matchmaker.LeaveRanked(userID) {
		log.Debug().Str("user_id", userID).Msg("left ranked queue")
	}
}

// JoinPrivateLobby waits in roomID until the invited user arrives.
func (o *Orchestrator) JoinPrivateLobby(ctx context.Context, connID, userID, roomID string) error {
	m, err := o.matchmaker.JoinLobby(connID, userID, roomID)
	return o.afterJoin(ctx, race.QueuePrivate, userID, m, err)
}

// Disconnect drops every queue entry of the connection. Live sessions are left
// to finish or hit the idle timeout.
func (o *Orchestrator) Disconnect(userID, connID string) {
	removed := o.matchmaker.RemoveConnection(userID, connID)
	if len(removed) > 0 {
		log.Info().
			Str("user_id", userID).
			Str("connection_id", connID).
			Interface("queues", removed).
			Msg("removed disconnected user from queues")
	}
}

func (o *Orchestrator) afterJoin(ctx context.Context, q race.QueueKind, userID string, m *matchmaker.Match, err error) error {
	switch {
	case errors.Is(err, race.ErrDuplicateQueueEntry):
		log.Debug().Str("user_id", userID).Str("queue", string(q)).Msg("ignoring duplicate queue entry")
		o.notifier.SendToUser(userID, events.NewWaitingForOpponent(q))
		return nil
	case err != nil:
		return err
	case m == nil:
		o.notifier.SendToUser(userID, events.NewWaitingForOpponent(q))
		return nil
	}

	o.formSession(ctx, *m)
	return nil
}

// RecordProgress stores the user's latest position and relays it to the
// other participants.
func (o *Orchestrator) RecordProgress(sessionID, userID string, p session.Progress) error {
	s, err := o.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	if err := s.RecordProgress(userID, p, o.clock.Now()); err != nil {
		return err
	}

	o.notifier.BroadcastToSession(sessionID, events.NewOpponentProgress(events.OpponentProgress{
		UserID:    userID,
		CharIndex: p.CharIndex,
		WPM:       p.WPM,
		Accuracy:  p.Accuracy,
	}), userID)
	return nil
}

// Completion is a participant's final result as reported by the client.
type Completion struct {
	WPM         float64
	Accuracy    float64
	Errors      int
	ElapsedTime float64
	ReplayTrace []race.ReplayPoint
}

// RecordCompletion accepts a participant's final result. Persistence and the
// finish check happen on the session runner in acceptance order.
func (o *Orchestrator) RecordCompletion(sessionID, userID string, c Completion) error {
	s, err := o.sessions.Get(sessionID)
	if err != nil {
		return err
	}

	err = s.Complete(userID, race.ParticipantResult{
		WPM:         c.WPM,
		Accuracy:    c.Accuracy,
		Errors:      c.Errors,
		ElapsedTime: c.ElapsedTime,
		CompletedAt: o.clock.Now(),
		ReplayTrace: c.ReplayTrace,
	})
	if errors.Is(err, race.ErrAlreadyCompleted) {
		log.Warn().
			Str("session_id", sessionID).
			Str("user_id", userID).
			Msg("ignoring duplicate completion")
	}
	return err
}

// QueueStats reports queue sizes and the average matchmaking wait.
func (o *Orchestrator) QueueStats() QueueStats {
	st := o.matchmaker.Stats()
	return QueueStats{
		CasualWaiting:  st.CasualWaiting,
		RankedWaiting:  st.RankedWaiting,
		OpenLobbies:    st.OpenLobbies,
		ActiveSessions: o.sessions.Len(),
		AvgWaitSeconds: o.waits.Average(),
	}
}

// Session returns a live session.
func (o *Orchestrator) Session(id string) (*session.Session, error) {
	return o.sessions.Get(id)
}
