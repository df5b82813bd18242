package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	events  map[uuid.UUID]OutboxEvent
	order   []uuid.UUID
	sent    []uuid.UUID
	pending int
}

func newFakeStore(events ...OutboxEvent) *fakeStore {
	s := &fakeStore{events: map[uuid.UUID]OutboxEvent{}}
	for _, ev := range events {
		s.events[ev.ID] = ev
		s.order = append(s.order, ev.ID)
	}
	return s
}

func (s *fakeStore) FetchOutboxByID(_ context.Context, id uuid.UUID) (*OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok || ev.SentAt != nil {
		return nil, fmt.Errorf("outbox event %s: %w", id, race.ErrNotFound)
	}
	return &ev, nil
}

func (s *fakeStore) FetchUnsentOutbox(_ context.Context, limit int) ([]OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OutboxEvent
	for _, id := range s.order {
		if ev := s.events[id]; ev.SentAt == nil && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkOutboxSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.events[id]
	now := time.Now()
	ev.SentAt = &now
	s.events[id] = ev
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) CountPending(context.Context) (int, error) { return s.pending, nil }

type fakePublisher struct {
	calls     []uuid.UUID
	failTimes map[uuid.UUID]int
}

func (p *fakePublisher) Publish(_ context.Context, ev OutboxEvent) error {
	p.calls = append(p.calls, ev.ID)
	if p.failTimes[ev.ID] > 0 {
		p.failTimes[ev.ID]--
		return errors.New("nats: timeout")
	}
	return nil
}

func newTestListener(store Store, pub Publisher) *Listener {
	cfg := DefaultListenerConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelay = 0
	return &Listener{store: store, publisher: pub, cfg: cfg}
}

func raceFinished() OutboxEvent {
	return OutboxEvent{
		ID:        uuid.New(),
		RaceID:    uuid.New(),
		EventType: "RaceFinished",
		Payload:   []byte(`{"sessionId":"x"}`),
	}
}

func TestHandleNotification_PublishesAndMarksSent(t *testing.T) {
	req := require.New(t)
	ev := raceFinished()
	store := newFakeStore(ev)
	pub := &fakePublisher{}
	l := newTestListener(store, pub)

	req.NoError(l.handleNotification(context.Background(), ev.ID.String()))
	req.Equal([]uuid.UUID{ev.ID}, pub.calls)
	req.Equal([]uuid.UUID{ev.ID}, store.sent)

	processed, last := l.Stats()
	req.EqualValues(1, processed)
	req.False(last.IsZero())

	// A second notification for the same row is a no-op.
	req.NoError(l.handleNotification(context.Background(), ev.ID.String()))
	req.Len(pub.calls, 1)
}

func TestHandleNotification_InvalidID(t *testing.T) {
	l := newTestListener(newFakeStore(), &fakePublisher{})
	require.Error(t, l.handleNotification(context.Background(), "not-a-uuid"))
}

func TestPublishWithRetry(t *testing.T) {
	req := require.New(t)
	ev := raceFinished()
	store := newFakeStore(ev)

	pub := &fakePublisher{failTimes: map[uuid.UUID]int{ev.ID: 2}}
	l := newTestListener(store, pub)
	req.NoError(l.handleNotification(context.Background(), ev.ID.String()))
	req.Len(pub.calls, 3)
	req.Len(store.sent, 1)

	other := raceFinished()
	store = newFakeStore(other)
	pub = &fakePublisher{failTimes: map[uuid.UUID]int{other.ID: 10}}
	l = newTestListener(store, pub)
	req.Error(l.handleNotification(context.Background(), other.ID.String()))
	req.Len(pub.calls, 3)
	req.Empty(store.sent)
}

func TestProcessUnsent_ContinuesPastFailures(t *testing.T) {
	req := require.New(t)
	a, b, c := raceFinished(), raceFinished(), raceFinished()
	store := newFakeStore(a, b, c)
	pub := &fakePublisher{failTimes: map[uuid.UUID]int{b.ID: 10}}
	l := newTestListener(store, pub)

	req.NoError(l.processUnsent(context.Background()))
	req.Equal([]uuid.UUID{a.ID, c.ID}, store.sent)

	unsent, err := store.FetchUnsentOutbox(context.Background(), 10)
	req.NoError(err)
	req.Len(unsent, 1)
	req.Equal(b.ID, unsent[0].ID)
}

func TestBuildMessage(t *testing.T) {
	req := require.New(t)
	ev := raceFinished()
	ev.Headers = map[string]string{"Trace-ID": "abc"}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	msg, err := buildMessage("race.events", ev, now)
	req.NoError(err)
	req.Equal("race.events.RaceFinished", msg.Subject)
	req.Equal(ev.ID.String(), msg.Header.Get("Event-ID"))
	req.Equal(ev.RaceID.String(), msg.Header.Get("Race-ID"))
	req.Equal("abc", msg.Header.Get("Trace-ID"))

	var env envelope
	req.NoError(json.Unmarshal(msg.Data, &env))
	req.Equal("RaceFinished", env.EventType)
	req.Equal(now, env.Timestamp)
	req.JSONEq(`{"sessionId":"x"}`, string(env.Payload))
}

func TestStreamConfig(t *testing.T) {
	sc := streamConfig(DefaultJetStreamConfig())
	require.Equal(t, "RACE_EVENTS", sc.Name)
	require.Equal(t, []string{"race.events.>"}, sc.Subjects)
	require.True(t, isStreamConfigEqual(sc, sc))
}

func TestDecodeHeaders(t *testing.T) {
	req := require.New(t)

	h, err := decodeHeaders(pqtype.NullRawMessage{})
	req.NoError(err)
	req.Nil(h)

	h, err = decodeHeaders(pqtype.NullRawMessage{RawMessage: json.RawMessage(`{"Trace-ID":"abc"}`), Valid: true})
	req.NoError(err)
	req.Equal(map[string]string{"Trace-ID": "abc"}, h)

	_, err = decodeHeaders(pqtype.NullRawMessage{RawMessage: json.RawMessage(`[1]`), Valid: true})
	req.Error(err)
}

type fakeRelay struct {
	processed uint64
	last      time.Time
	running   bool
}

func (f fakeRelay) Stats() (uint64, time.Time) { return f.processed, f.last }
func (f fakeRelay) Running() bool              { return f.running }

type fakeDB struct{ err error }

func (f fakeDB) PingContext(context.Context) error { return f.err }

type fakeBus bool

func (f fakeBus) Connected() bool { return bool(f) }

func TestHealthChecker(t *testing.T) {
	req := require.New(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	healthy := NewHealthChecker(fakeRelay{processed: 4, last: now.Add(-time.Second), running: true}, fakeDB{}, fakeBus(true), &fakeStore{pending: 2}, time.Minute)
	healthy.now = func() time.Time { return now }
	status := healthy.Check(context.Background())
	req.True(status.Healthy)
	req.Equal(2, status.PendingEvents)
	req.EqualValues(4, status.EventsProcessed)

	stalled := NewHealthChecker(fakeRelay{processed: 4, last: now.Add(-time.Hour), running: true}, fakeDB{}, fakeBus(true), &fakeStore{pending: 2}, time.Minute)
	stalled.now = func() time.Time { return now }
	req.False(stalled.Check(context.Background()).Healthy)

	down := NewHealthChecker(fakeRelay{}, fakeDB{err: errors.New("refused")}, fakeBus(false), &fakeStore{}, time.Minute)
	status = down.Check(context.Background())
	req.False(status.Healthy)
	req.False(status.DatabaseConnected)
	req.Len(status.Errors, 3)

	rec := httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	req.Equal(http.StatusServiceUnavailable, rec.Code)
}
