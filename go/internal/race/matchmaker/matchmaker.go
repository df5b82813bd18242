// Package matchmaker pairs waiting users into races.
//
// All queues share one mutex, so joins, leaves and pairings never interleave.
// Users handed out in a Match stay engaged until Release is called, which keeps
// a racing user from being queued again.
package matchmaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// DefaultRankedWindow is the largest rating gap the ranked queue will pair.
const DefaultRankedWindow = 200

// Entry is one waiting user.
type Entry struct {
	ConnID   string
	UserID   string
	JoinedAt time.Time
	// Rating is only set for ranked entries.
	Rating int
}

// Match is a group of entries ready to race.
type Match struct {
	Queue  race.QueueKind
	RoomID string
	// Initiator is the entry whose join formed the match.
	Initiator Entry
	Entries   []Entry
}

// UserIDs returns the matched user IDs in entry order.
func (m Match) UserIDs() []string {
	return lo.Map(m.Entries, func(e Entry, _ int) string { return e.UserID })
}

// Stats is a point-in-time view of the queues.
type Stats struct {
	CasualWaiting int
	RankedWaiting int
	OpenLobbies   int
	Engaged       int
}

// Clock supplies join timestamps.
type Clock interface {
	Now() time.Time
}

type Matchmaker struct {
	mu      sync.Mutex
	casual  []Entry
	ranked  []Entry
	lobbies map[string][]Entry
	engaged map[string]struct{}

	clock        Clock
	rankedWindow int
}

func New(clock Clock, rankedWindow int) *Matchmaker {
	if rankedWindow <= 0 {
		rankedWindow = DefaultRankedWindow
	}
	return &Matchmaker{
		lobbies:      make(map[string][]Entry),
		engaged:      make(map[string]struct{}),
		clock:        clock,
		rankedWindow: rankedWindow,
	}
}

// JoinCasual enqueues a user and pairs the two oldest entries once two are waiting.
// A nil match means the caller should wait.
func (m *Matchmaker) JoinCasual(connID, userID string) (*Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.admit(userID); err != nil {
		return nil, err
	}
	if containsUser(m.casual, userID) {
		return nil, fmt.Errorf("casual queue: %w", race.ErrDuplicateQueueEntry)
	}

	entry := Entry{ConnID: connID, UserID: userID, JoinedAt: m.clock.Now()}
	m.casual = append(m.casual, entry)
	if len(m.casual) < 2 {
		return nil, nil
	}

	pair := []Entry{m.casual[0], m.casual[1]}
	m.casual = m.casual[2:]
	return m.engage(race.QueueCasual, "", entry, pair), nil
}

// LeaveCasual removes a user from the casual queue.
func (m *Matchmaker) LeaveCasual(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed bool
	m.casual, removed = removeUser(m.casual, userID)
	return removed
}

// JoinRanked looks for the queued player with the smallest rating gap within
// the window. Without a candidate the user stays queued until someone else joins.
func (m *Matchmaker) JoinRanked(connID, userID string, rating int) (*Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.admit(userID); err != nil {
		return nil, err
	}
	if containsUser(m.ranked, userID) {
		return nil, fmt.Errorf("ranked queue: %w", race.ErrDuplicateQueueEntry)
	}

	entry := Entry{ConnID: connID, UserID: userID, JoinedAt: m.clock.Now(), Rating: rating}

	best, bestDiff := -1, 0
	for i, candidate := range m.ranked {
		diff := abs(candidate.Rating - rating)
		if diff > m.rankedWindow {
			continue
		}
		if best == -1 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}

	if best == -1 {
		m.ranked = append(m.ranked, entry)
		return nil, nil
	}

	opponent := m.ranked[best]
	m.ranked = append(m.ranked[:best:best], m.ranked[best+1:]...)
	log.Debug().
		Str("user_id", userID).
		Str("opponent_id", opponent.UserID).
		Int("rating_diff", bestDiff).
		Msg("ranked pair found")
	return m.engage(race.QueueRanked, "", entry, []Entry{opponent, entry}), nil
}

// LeaveRanked removes a user from the ranked queue.
func (m *Matchmaker) LeaveRanked(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed bool
	m.ranked, removed = removeUser(m.ranked, userID)
	return removed
}

// JoinLobby buffers the first joiner of a room and pairs on the second.
// A repeated join by a waiting user returns race.ErrDuplicateQueueEntry.
func (m *Matchmaker) JoinLobby(connID, userID, roomID string) (*Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.admit(userID); err != nil {
		return nil, err
	}
	lobby := m.lobbies[roomID]
	if containsUser(lobby, userID) {
		return nil, fmt.Errorf("lobby %s: %w", roomID, race.ErrDuplicateQueueEntry)
	}

	entry := Entry{ConnID: connID, UserID: userID, JoinedAt: m.clock.Now()}
	lobby = append(lobby, entry)
	if len(lobby) < 2 {
		m.lobbies[roomID] = lobby
		return nil, nil
	}

	delete(m.lobbies, roomID)
	return m.engage(race.QueuePrivate, roomID, entry, lobby), nil
}

// RemoveConnection drops the queue and lobby entries the user made from
// connID. Entries made from a newer connection survive a stale socket closing.
// It returns the queues the user was removed from.
func (m *Matchmaker) RemoveConnection(userID, connID string) []race.QueueKind {
	m.mu.Lock()
	defer m.mu.Unlock()

	match := func(e Entry) bool { return e.UserID == userID && e.ConnID == connID }

	var removed []race.QueueKind
	if n := len(m.casual); n > 0 {
		m.casual = lo.Reject(m.casual, func(e Entry, _ int) bool { return match(e) })
		if len(m.casual) != n {
			removed = append(removed, race.QueueCasual)
		}
	}
	if n := len(m.ranked); n > 0 {
		m.ranked = lo.Reject(m.ranked, func(e Entry, _ int) bool { return match(e) })
		if len(m.ranked) != n {
			removed = append(removed, race.QueueRanked)
		}
	}
	for room, lobby := range m.lobbies {
		kept := lo.Reject(lobby, func(e Entry, _ int) bool { return match(e) })
		if len(kept) == len(lobby) {
			continue
		}
		removed = append(removed, race.QueuePrivate)
		if len(kept) == 0 {
			delete(m.lobbies, room)
		} else {
			m.lobbies[room] = kept
		}
	}
	return lo.Uniq(removed)
}

// Release frees users handed out in a match so they may queue again.
func (m *Matchmaker) Release(userIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range userIDs {
		delete(m.engaged, id)
	}
}

// Engaged reports whether the user is matched or racing.
func (m *Matchmaker) Engaged(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.engaged[userID]
	return ok
}

func (m *Matchmaker) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		CasualWaiting: len(m.casual),
		RankedWaiting: len(m.ranked),
		OpenLobbies:   len(m.lobbies),
		Engaged:       len(m.engaged),
	}
}

func (m *Matchmaker) admit(userID string) error {
	if _, ok := m.engaged[userID]; ok {
		return race.ErrAlreadyInSession
	}
	return nil
}

// engage marks the matched users and pulls them out of every other queue.
// Callers hold m.mu.
func (m *Matchmaker) engage(q race.QueueKind, roomID string, initiator Entry, entries []Entry) *Match {
	for _, e := range entries {
		m.engaged[e.UserID] = struct{}{}
		m.casual, _ = removeUser(m.casual, e.UserID)
		m.ranked, _ = removeUser(m.ranked, e.UserID)
		for room, lobby := range m.lobbies {
			if kept, ok := removeUser(lobby, e.UserID); ok {
				if len(kept) == 0 {
					delete(m.lobbies, room)
				} else {
					m.lobbies[room] = kept
				}
			}
		}
	}
	return &Match{Queue: q, RoomID: roomID, Initiator: initiator, Entries: entries}
}

func containsUser(entries []Entry, userID string) bool {
	return lo.ContainsBy(entries, func(e Entry) bool { return e.UserID == userID })
}

func removeUser(entries []Entry, userID string) ([]Entry, bool) {
	kept := lo.Reject(entries, func(e Entry, _ int) bool { return e.UserID == userID })
	return kept, len(kept) != len(entries)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
