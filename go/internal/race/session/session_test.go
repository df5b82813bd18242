package session

import (
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSession(t *testing.T, kind race.Kind, users ...string) *Session {
	t.Helper()
	pts := make([]Participant, len(users))
	for i, u := range users {
		pts[i] = Participant{UserID: u, DisplayName: u, Rating: 1000}
	}
	s, err := New(Params{
		ID:             "s-1",
		Kind:           kind,
		Text:           race.Text{ID: "t-1", Content: "the quick brown fox"},
		Participants:   pts,
		CreatedAt:      start,
		ScheduledStart: start.Add(3 * time.Second),
	})
	require.NoError(t, err)
	return s
}

func result(wpm float64, at time.Time) race.ParticipantResult {
	return race.ParticipantResult{WPM: wpm, Accuracy: 98, Errors: 1, ElapsedTime: 30, CompletedAt: at}
}

func TestNew_ValidatesParticipants(t *testing.T) {
	req := require.New(t)

	_, err := New(Params{Kind: race.KindCasual, Participants: []Participant{{UserID: "a"}}})
	req.Error(err)

	_, err = New(Params{Kind: race.KindRanked, Participants: []Participant{{UserID: "a"}, {UserID: "b"}, {UserID: "c"}}})
	req.Error(err)

	_, err = New(Params{Kind: race.KindCasual, Participants: []Participant{{UserID: "a"}, {UserID: "a"}}})
	req.Error(err)

	s, err := New(Params{Kind: race.KindPrivate, Participants: []Participant{{UserID: "a"}, {UserID: "b"}, {UserID: "c"}}})
	req.NoError(err)
	req.Equal(StateForming, s.State())
}

func TestRecordProgress(t *testing.T) {
	req := require.New(t)
	s := newSession(t, race.KindCasual, "a", "b")

	// Before the countdown the session keeps forming, but input is accepted.
	req.NoError(s.RecordProgress("a", Progress{CharIndex: 1, WPM: 10}, start.Add(time.Second)))
	req.Equal(StateForming, s.State())

	req.NoError(s.RecordProgress("a", Progress{CharIndex: 5, WPM: 40}, start.Add(4*time.Second)))
	req.Equal(StateActive, s.State())
	req.Equal(Progress{CharIndex: 5, WPM: 40}, s.Progress()["a"])

	req.ErrorIs(s.RecordProgress("zed", Progress{}, start), race.ErrNotParticipant)

	s.Close(start.Add(time.Minute))
	req.ErrorIs(s.RecordProgress("a", Progress{CharIndex: 6}, start.Add(time.Minute)), race.ErrSessionClosed)
	req.Equal(5, s.Progress()["a"].CharIndex)
}

func TestComplete_OncePerUser(t *testing.T) {
	req := require.New(t)
	s := newSession(t, race.KindCasual, "a", "b")

	req.NoError(s.Complete("a", result(90, start.Add(30*time.Second))))
	req.Equal(StateCompleting, s.State())

	err := s.Complete("a", result(150, start.Add(31*time.Second)))
	req.ErrorIs(err, race.ErrAlreadyCompleted)

	a, ok := s.Participant("a")
	req.True(ok)
	req.Equal(90.0, a.WPM)
	req.Equal(start.Add(30*time.Second), *a.CompletedAt)
	req.False(s.AllFinished())

	req.Equal("a", <-s.Completions())
	req.Len(s.Completions(), 0)
}

func TestComplete_ConcurrentLastFinishers(t *testing.T) {
	req := require.New(t)
	s := newSession(t, race.KindCasual, "a", "b", "c", "d")

	var wg sync.WaitGroup
	for _, u := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_ = s.Complete(u, result(60, start.Add(time.Minute)))
		}(u)
	}
	wg.Wait()

	req.True(s.AllFinished())
	req.Len(s.Completions(), 4)

	closes := 0
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Close(start.Add(2 * time.Minute)) {
				mu.Lock()
				closes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	req.Equal(1, closes)
	req.Equal(StateClosed, s.State())
	req.ErrorIs(s.Complete("a", result(1, start)), race.ErrSessionClosed)
}

func TestScore(t *testing.T) {
	t.Run("winner", func(t *testing.T) {
		req := require.New(t)
		s := newSession(t, race.KindCasual, "a", "b")
		req.NoError(s.Complete("a", result(90, start)))
		req.NoError(s.Complete("b", result(80, start)))

		out := s.Score()
		req.NotNil(out.WinnerID)
		req.Equal("a", *out.WinnerID)
		req.False(out.IsDraw)
		req.Empty(out.Forfeited)
	})

	t.Run("draw", func(t *testing.T) {
		req := require.New(t)
		s := newSession(t, race.KindCasual, "a", "b")
		req.NoError(s.Complete("a", result(80, start)))
		req.NoError(s.Complete("b", result(80, start)))

		out := s.Score()
		req.Nil(out.WinnerID)
		req.True(out.IsDraw)
	})

	t.Run("draw only compares the top two", func(t *testing.T) {
		req := require.New(t)
		s := newSession(t, race.KindPrivate, "a", "b", "c")
		req.NoError(s.Complete("a", result(70, start)))
		req.NoError(s.Complete("b", result(95, start)))
		req.NoError(s.Complete("c", result(70, start)))

		out := s.Score()
		req.Equal("b", *out.WinnerID)
		req.False(out.IsDraw)
	})

	t.Run("forfeit", func(t *testing.T) {
		req := require.New(t)
		s := newSession(t, race.KindRanked, "a", "b")
		req.NoError(s.Complete("b", result(40, start)))

		out := s.Score()
		req.Equal("b", *out.WinnerID)
		req.Equal([]string{"a"}, out.Forfeited)
	})

	t.Run("nobody finished", func(t *testing.T) {
		req := require.New(t)
		s := newSession(t, race.KindCasual, "a", "b")

		out := s.Score()
		req.Nil(out.WinnerID)
		req.False(out.IsDraw)
		req.Equal([]string{"a", "b"}, out.Forfeited)
	})
}

func TestStore(t *testing.T) {
	req := require.New(t)
	st := NewStore()
	s := newSession(t, race.KindCasual, "a", "b")

	req.NoError(st.Add(s))
	req.Equal(1, st.Len())

	id, ok := st.SessionOf("b")
	req.True(ok)
	req.Equal("s-1", id)

	other, err := New(Params{ID: "s-2", Kind: race.KindCasual, Participants: []Participant{{UserID: "b"}, {UserID: "c"}}})
	req.NoError(err)
	req.ErrorIs(st.Add(other), race.ErrAlreadyInSession)

	got, err := st.Get("s-1")
	req.NoError(err)
	req.Same(s, got)

	st.Remove("s-1")
	_, err = st.Get("s-1")
	req.ErrorIs(err, race.ErrNotFound)
	_, ok = st.SessionOf("a")
	req.False(ok)
	req.NoError(st.Add(other))
}
