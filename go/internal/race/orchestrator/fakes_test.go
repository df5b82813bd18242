package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/mcdev12/typerace/go/internal/race/events"
)

type fakeAccounts struct {
	mu            sync.Mutex
	users         map[string]*race.Account
	statsUpdates  map[string][]race.StatsUpdate
	ratingUpdates map[string][]race.RatingUpdate
}

func newFakeAccounts(accounts ...race.Account) *fakeAccounts {
	f := &fakeAccounts{
		users:         make(map[string]*race.Account),
		statsUpdates:  make(map[string][]race.StatsUpdate),
		ratingUpdates: make(map[string][]race.RatingUpdate),
	}
	for i := range accounts {
		a := accounts[i]
		f.users[a.ID] = &a
	}
	return f
}

func (f *fakeAccounts) FindUserByID(_ context.Context, id string) (race.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.users[id]
	if !ok {
		return race.Account{}, fmt.Errorf("user %s: %w", id, race.ErrNotFound)
	}
	return *a, nil
}

func (f *fakeAccounts) ApplyStatsUpdate(_ context.Context, userID string, u race.StatsUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.users[userID]
	if !ok {
		return race.ErrNotFound
	}
	if u.BestWPM != nil {
		a.Stats.BestWPM = *u.BestWPM
	}
	if u.AvgWPM != nil {
		a.Stats.AvgWPM = *u.AvgWPM
	}
	a.Stats.XP += u.XPDelta
	a.Stats.RacesCompleted += u.RacesCompletedIncrement
	a.Stats.RacesWon += u.WinIncrement
	f.statsUpdates[userID] = append(f.statsUpdates[userID], u)
	return nil
}

func (f *fakeAccounts) ApplyRatingUpdate(_ context.Context, userID string, u race.RatingUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.users[userID]
	if !ok {
		return race.ErrNotFound
	}
	a.Rating = u.NewRating
	a.RankTier = u.RankTier
	if u.NewRating > a.HighestRating {
		a.HighestRating = u.NewRating
	}
	f.ratingUpdates[userID] = append(f.ratingUpdates[userID], u)
	return nil
}

func (f *fakeAccounts) account(id string) race.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.users[id]
}

func (f *fakeAccounts) ratings(id string) []race.RatingUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]race.RatingUpdate(nil), f.ratingUpdates[id]...)
}

type fakeTexts struct {
	text race.Text
	err  error
}

func (f *fakeTexts) FindTextByDifficulty(_ context.Context, difficulty string) (race.Text, error) {
	if f.err != nil {
		return race.Text{}, f.err
	}
	t := f.text
	t.Difficulty = difficulty
	return t, nil
}

type fakeHistory struct {
	mu        sync.Mutex
	err       error
	calls     int
	results   map[string]map[string]race.ParticipantResult
	summaries map[string][]race.SessionSummary
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		results:   make(map[string]map[string]race.ParticipantResult),
		summaries: make(map[string][]race.SessionSummary),
	}
}

func (f *fakeHistory) RecordParticipantResult(_ context.Context, sessionID, userID string, r race.ParticipantResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.results[sessionID] == nil {
		f.results[sessionID] = make(map[string]race.ParticipantResult)
	}
	f.results[sessionID][userID] = r
	return nil
}

func (f *fakeHistory) FinalizeSession(_ context.Context, sessionID string, s race.SessionSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return f.err
	}
	f.summaries[sessionID] = append(f.summaries[sessionID], s)
	return nil
}

func (f *fakeHistory) summariesOf(sessionID string) []race.SessionSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]race.SessionSummary(nil), f.summaries[sessionID]...)
}

func (f *fakeHistory) result(sessionID, userID string) (race.ParticipantResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[sessionID][userID]
	return r, ok
}

type fakeNotifier struct {
	mu     sync.Mutex
	groups map[string][]string
	sent   map[string][]events.Event
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		groups: make(map[string][]string),
		sent:   make(map[string][]events.Event),
	}
}

func (n *fakeNotifier) SendToUser(userID string, ev events.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[userID] = append(n.sent[userID], ev)
}

func (n *fakeNotifier) BroadcastToSession(sessionID string, ev events.Event, except string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range n.groups[sessionID] {
		if id != except {
			n.sent[id] = append(n.sent[id], ev)
		}
	}
}

func (n *fakeNotifier) JoinSession(sessionID string, userIDs []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.groups[sessionID] = userIDs
}

func (n *fakeNotifier) LeaveSession(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.groups, sessionID)
}

func (n *fakeNotifier) of(userID string, typ events.EventType) []events.Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []events.Event
	for _, ev := range n.sent[userID] {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
