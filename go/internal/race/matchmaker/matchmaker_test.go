package matchmaker

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/stretchr/testify/require"
)

func newMatchmaker() (*Matchmaker, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return New(clock, DefaultRankedWindow), clock
}

func TestJoinCasual_PairsInArrivalOrder(t *testing.T) {
	req := require.New(t)
	mm, clock := newMatchmaker()

	var matches []*Match
	for i := 1; i <= 6; i++ {
		clock.Advance(time.Second)
		m, err := mm.JoinCasual(fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i))
		req.NoError(err)
		if i%2 == 1 {
			req.Nil(m, "odd joiner must wait")
			continue
		}
		req.NotNil(m)
		matches = append(matches, m)
	}

	req.Len(matches, 3)
	req.Equal([]string{"u1", "u2"}, matches[0].UserIDs())
	req.Equal([]string{"u3", "u4"}, matches[1].UserIDs())
	req.Equal([]string{"u5", "u6"}, matches[2].UserIDs())
	req.Equal("u2", matches[0].Initiator.UserID)
	req.Equal(race.QueueCasual, matches[0].Queue)
	req.Equal(0, mm.Stats().CasualWaiting)
}

func TestJoinCasual_DuplicateAndEngaged(t *testing.T) {
	req := require.New(t)
	mm, _ := newMatchmaker()

	_, err := mm.JoinCasual("c1", "u1")
	req.NoError(err)
	_, err = mm.JoinCasual("c1", "u1")
	req.ErrorIs(err, race.ErrDuplicateQueueEntry)
	req.Equal(1, mm.Stats().CasualWaiting)

	m, err := mm.JoinCasual("c2", "u2")
	req.NoError(err)
	req.NotNil(m)

	// Matched users cannot queue again until released.
	_, err = mm.JoinCasual("c1", "u1")
	req.ErrorIs(err, race.ErrAlreadyInSession)
	_, err = mm.JoinRanked("c1", "u1", 1000)
	req.ErrorIs(err, race.ErrAlreadyInSession)

	mm.Release("u1", "u2")
	m, err = mm.JoinCasual("c1", "u1")
	req.NoError(err)
	req.Nil(m)
}

func TestJoinRanked_PicksClosestWithinWindow(t *testing.T) {
	req := require.New(t)
	mm, _ := newMatchmaker()

	for _, e := range []struct {
		user   string
		rating int
	}{{"far", 1500}, {"near", 1180}, {"nearer", 1060}} {
		m, err := mm.JoinRanked("c-"+e.user, e.user, e.rating)
		req.NoError(err)
		req.Nil(m)
	}

	// 1000 vs 1060 (60), 1180 (180), 1500 (500): the closest wins.
	m, err := mm.JoinRanked("c-new", "new", 1000)
	req.NoError(err)
	req.NotNil(m)
	req.Equal([]string{"nearer", "new"}, m.UserIDs())
	req.Equal("new", m.Initiator.UserID)
	req.Equal(2, mm.Stats().RankedWaiting)
}

func TestJoinRanked_StaysQueuedOutsideWindow(t *testing.T) {
	req := require.New(t)
	mm, _ := newMatchmaker()

	_, err := mm.JoinRanked("c1", "a", 1000)
	req.NoError(err)

	m, err := mm.JoinRanked("c2", "b", 1201)
	req.NoError(err)
	req.Nil(m)
	req.Equal(2, mm.Stats().RankedWaiting)

	// a sits exactly on the window edge, but b is closer.
	m, err = mm.JoinRanked("c3", "c", 1200)
	req.NoError(err)
	req.NotNil(m)
	req.Equal([]string{"b", "c"}, m.UserIDs())
	req.True(mm.LeaveRanked("a"))
	req.False(mm.LeaveRanked("a"))
}

func TestJoinRanked_RemovesMatchedUsersFromOtherQueues(t *testing.T) {
	req := require.New(t)
	mm, _ := newMatchmaker()

	_, err := mm.JoinCasual("c1", "a")
	req.NoError(err)
	_, err = mm.JoinRanked("c1", "a", 1000)
	req.NoError(err)

	m, err := mm.JoinRanked("c2", "b", 1100)
	req.NoError(err)
	req.NotNil(m)

	// a was also waiting in casual; a new casual joiner must not pair with them.
	m, err = mm.JoinCasual("c3", "c")
	req.NoError(err)
	req.Nil(m)
}

func TestJoinLobby(t *testing.T) {
	req := require.New(t)
	mm, _ := newMatchmaker()

	m, err := mm.JoinLobby("c1", "host", "room-1")
	req.NoError(err)
	req.Nil(m)

	_, err = mm.JoinLobby("c1", "host", "room-1")
	req.ErrorIs(err, race.ErrDuplicateQueueEntry)
	req.Equal(1, mm.Stats().OpenLobbies)

	m, err = mm.JoinLobby("c2", "guest", "room-1")
	req.NoError(err)
	req.NotNil(m)
	req.Equal(race.QueuePrivate, m.Queue)
	req.Equal("room-1", m.RoomID)
	req.Equal([]string{"host", "guest"}, m.UserIDs())
	req.Equal(0, mm.Stats().OpenLobbies)
}

func TestRemoveConnection(t *testing.T) {
	req := require.New(t)
	mm, _ := newMatchmaker()

	_, err := mm.JoinCasual("c1", "gone")
	req.NoError(err)
	_, err = mm.JoinRanked("c1", "gone", 1000)
	req.NoError(err)
	_, err = mm.JoinLobby("c1", "gone", "room-9")
	req.NoError(err)

	removed := mm.RemoveConnection("gone", "c1")
	req.ElementsMatch([]race.QueueKind{race.QueueCasual, race.QueueRanked, race.QueuePrivate}, removed)
	req.Equal(Stats{}, mm.Stats())

	// Later joiners never pair with the disconnected user.
	m, err := mm.JoinCasual("c2", "x")
	req.NoError(err)
	req.Nil(m)
	m, err = mm.JoinRanked("c3", "y", 1000)
	req.NoError(err)
	req.Nil(m)
}

func TestRemoveConnection_KeepsEntriesFromNewerConnection(t *testing.T) {
	req := require.New(t)
	mm, _ := newMatchmaker()

	// u1 reconnected on c2 and queued everywhere before c1 closed.
	_, err := mm.JoinCasual("c2", "u1")
	req.NoError(err)
	_, err = mm.JoinRanked("c2", "u1", 1000)
	req.NoError(err)
	_, err = mm.JoinLobby("c2", "u1", "room-3")
	req.NoError(err)

	req.Empty(mm.RemoveConnection("u1", "c1"))
	req.Equal(Stats{CasualWaiting: 1, RankedWaiting: 1, OpenLobbies: 1}, mm.Stats())

	// Another user's connection id never removes u1's entries.
	req.Empty(mm.RemoveConnection("u2", "c2"))
	req.Equal(1, mm.Stats().CasualWaiting)

	removed := mm.RemoveConnection("u1", "c2")
	req.ElementsMatch([]race.QueueKind{race.QueueCasual, race.QueueRanked, race.QueuePrivate}, removed)
	req.Equal(Stats{}, mm.Stats())
}

func TestWaitTracker(t *testing.T) {
	req := require.New(t)

	w := NewWaitTracker(3, DefaultWaitFloor)
	req.Equal(0.02, w.Average())

	w.Record(time.Millisecond)
	req.Equal(0.02, w.Average(), "floor applies to the average")

	w.Record(2 * time.Second)
	w.Record(4 * time.Second)
	// (0.001 + 2 + 4) / 3
	req.Equal(2.0, w.Average())

	// Ring is full: the 1ms sample is evicted.
	w.Record(6 * time.Second)
	req.Equal(3, w.Len())
	req.Equal(4.0, w.Average())
}
