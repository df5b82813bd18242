// Package session holds the in-memory state of live races.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/samber/lo"
)

// State of a race session.
type State string

const (
	StateForming    State = "forming"
	StateActive     State = "active"
	StateCompleting State = "completing"
	StateClosed     State = "closed"
)

// Participant is one racer's record inside a session.
type Participant struct {
	UserID      string
	ConnID      string
	Username    string
	DisplayName string
	// Rating is the rating at formation. Ranked deltas are computed from it.
	Rating int

	WPM         float64
	Accuracy    float64
	Errors      int
	ElapsedTime float64
	CompletedAt *time.Time
	ReplayTrace []race.ReplayPoint
}

// Finished reports whether the participant has completed the race.
func (p Participant) Finished() bool {
	return p.CompletedAt != nil
}

// Progress is the latest in-race position reported by a participant.
type Progress struct {
	CharIndex int
	WPM       float64
	Accuracy  float64
}

// Params describe a session at formation.
type Params struct {
	ID             string
	Kind           race.Kind
	Text           race.Text
	Participants   []Participant
	CreatedAt      time.Time
	ScheduledStart time.Time
	AverageRating  int
	RankTier       string
}

// Session is a single race. All methods are safe for concurrent use.
type Session struct {
	ID             string
	Kind           race.Kind
	Text           race.Text
	CreatedAt      time.Time
	ScheduledStart time.Time
	AverageRating  int
	RankTier       string

	mu           sync.Mutex
	participants []*Participant
	progress     map[string]Progress
	state        State
	closedAt     *time.Time
	lastActivity time.Time
	completions  chan string
}

// New validates params and builds a session in the Forming state.
// Ranked sessions must have exactly two participants.
func New(p Params) (*Session, error) {
	if len(p.Participants) < 2 {
		return nil, fmt.Errorf("session needs at least 2 participants, got %d", len(p.Participants))
	}
	if p.Kind == race.KindRanked && len(p.Participants) != 2 {
		return nil, fmt.Errorf("ranked session needs exactly 2 participants, got %d", len(p.Participants))
	}
	ids := lo.Map(p.Participants, func(pt Participant, _ int) string { return pt.UserID })
	if len(lo.Uniq(ids)) != len(ids) {
		return nil, fmt.Errorf("duplicate participant in session")
	}

	participants := make([]*Participant, len(p.Participants))
	for i := range p.Participants {
		pt := p.Participants[i]
		participants[i] = &pt
	}

	return &Session{
		ID:             p.ID,
		Kind:           p.Kind,
		Text:           p.Text,
		CreatedAt:      p.CreatedAt,
		ScheduledStart: p.ScheduledStart,
		AverageRating:  p.AverageRating,
		RankTier:       p.RankTier,
		participants:   participants,
		progress:       make(map[string]Progress, len(participants)),
		state:          StateForming,
		lastActivity:   p.ScheduledStart,
		completions:    make(chan string, len(participants)),
	}, nil
}

// Completions yields user IDs in the order their completions were accepted.
// The channel has room for every participant, so accepting never blocks.
func (s *Session) Completions() <-chan string {
	return s.completions
}

// RecordProgress overwrites the user's progress snapshot.
func (s *Session) RecordProgress(userID string, p Progress, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return race.ErrSessionClosed
	}
	if s.find(userID) == nil {
		return race.ErrNotParticipant
	}

	s.progress[userID] = p
	s.touch(now)
	return nil
}

// Complete records a participant's final result. A second call for the same
// user returns race.ErrAlreadyCompleted and changes nothing.
func (s *Session) Complete(userID string, r race.ParticipantResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return race.ErrSessionClosed
	}
	pt := s.find(userID)
	if pt == nil {
		return race.ErrNotParticipant
	}
	if pt.Finished() {
		return race.ErrAlreadyCompleted
	}

	completedAt := r.CompletedAt
	pt.WPM = r.WPM
	pt.Accuracy = r.Accuracy
	pt.Errors = r.Errors
	pt.ElapsedTime = r.ElapsedTime
	pt.ReplayTrace = r.ReplayTrace
	pt.CompletedAt = &completedAt

	s.state = StateCompleting
	s.touch(completedAt)
	s.completions <- userID
	return nil
}

// Close moves the session to Closed. It returns false if it was already closed.
func (s *Session) Close(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	s.closedAt = &now
	return true
}

// AllFinished reports whether every participant has completed.
func (s *Session) AllFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lo.EveryBy(s.participants, func(p *Participant) bool { return p.Finished() })
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// LastActivity returns the time of the last progress or completion.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastActivity
}

// ClosedAt returns when the session closed, or nil.
func (s *Session) ClosedAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closedAt
}

// Participant returns a copy of one participant's record.
func (s *Session) Participant(userID string) (Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pt := s.find(userID)
	if pt == nil {
		return Participant{}, false
	}
	return *pt, true
}

// Participants returns copies of every participant in formation order.
func (s *Session) Participants() []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lo.Map(s.participants, func(p *Participant, _ int) Participant { return *p })
}

// UserIDs returns participant user IDs in formation order.
func (s *Session) UserIDs() []string {
	return lo.Map(s.participants, func(p *Participant, _ int) string { return p.UserID })
}

// Progress returns a copy of the progress snapshot.
func (s *Session) Progress() map[string]Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Progress, len(s.progress))
	for k, v := range s.progress {
		out[k] = v
	}
	return out
}

func (s *Session) find(userID string) *Participant {
	for _, p := range s.participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// touch records activity. Forming becomes Active once the countdown has elapsed.
func (s *Session) touch(now time.Time) {
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
	if s.state == StateForming && !now.Before(s.ScheduledStart) {
		s.state = StateActive
	}
}

// Outcome is the scored result of a session.
type Outcome struct {
	WinnerID  *string
	IsDraw    bool
	Forfeited []string
}

// Score computes the winner among finished participants. Two finishers tied
// at the top make a draw. Unfinished participants are reported as forfeited.
func (s *Session) Score() Outcome {
	s.mu.Lock()
	finished := lo.Filter(s.participants, func(p *Participant, _ int) bool { return p.Finished() })
	forfeited := lo.FilterMap(s.participants, func(p *Participant, _ int) (string, bool) {
		return p.UserID, !p.Finished()
	})
	finished = lo.Map(finished, func(p *Participant, _ int) *Participant { cp := *p; return &cp })
	s.mu.Unlock()

	out := Outcome{Forfeited: forfeited}
	if len(finished) == 0 {
		return out
	}

	sort.SliceStable(finished, func(i, j int) bool { return finished[i].WPM > finished[j].WPM })
	if len(finished) >= 2 && finished[0].WPM == finished[1].WPM {
		out.IsDraw = true
		return out
	}
	winner := finished[0].UserID
	out.WinnerID = &winner
	return out
}
