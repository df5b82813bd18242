package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/mcdev12/typerace/go/internal/race"
)

// EventType names an outbound event.
type EventType string

const (
	EventWaitingForOpponent EventType = "waiting-for-opponent"
	EventSessionMatched     EventType = "session-matched"
	EventOpponentProgress   EventType = "opponent-progress"
	EventSessionResults     EventType = "session-results"
	EventMatchCancelled     EventType = "match-cancelled"
	EventNotification       EventType = "notification"
	EventError              EventType = "error"
)

// Event is an outbound message. Data is one of the payload types below.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type WaitingForOpponent struct {
	QueueKind race.QueueKind `json:"queueKind"`
}

type ParticipantInfo struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

type SessionMatched struct {
	SessionID      string            `json:"sessionId"`
	Text           string            `json:"text"`
	Participants   []ParticipantInfo `json:"participants"`
	ScheduledStart time.Time         `json:"scheduledStart"`
	Kind           race.Kind         `json:"kind"`
}

type OpponentProgress struct {
	UserID    string  `json:"userId"`
	CharIndex int     `json:"charIndex"`
	WPM       float64 `json:"wpm"`
	Accuracy  float64 `json:"accuracy"`
}

type ResultParticipant struct {
	UserID      string     `json:"userId"`
	DisplayName string     `json:"displayName"`
	WPM         float64    `json:"wpm"`
	Accuracy    float64    `json:"accuracy"`
	Errors      int        `json:"errors"`
	ElapsedTime float64    `json:"elapsedTime"`
	CompletedAt *time.Time `json:"completedAt"`
	Forfeited   bool       `json:"forfeited,omitempty"`
}

type SessionResults struct {
	SessionID     string              `json:"sessionId"`
	Kind          race.Kind           `json:"kind"`
	Participants  []ResultParticipant `json:"participants"`
	WinnerID      *string             `json:"winnerId"`
	IsDraw        bool                `json:"isDraw"`
	RatingChanges []race.RatingChange `json:"ratingChanges,omitempty"`
	Forfeited     []string            `json:"forfeited,omitempty"`
}

type MatchCancelled struct {
	Reason string `json:"reason"`
}

// Notification is an out-of-band message such as a challenge or a poke.
type Notification struct {
	Kind       string          `json:"kind"`
	FromUserID string          `json:"fromUserId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewWaitingForOpponent(q race.QueueKind) Event {
	return Event{Type: EventWaitingForOpponent, Data: WaitingForOpponent{QueueKind: q}}
}

func NewSessionMatched(p SessionMatched) Event {
	return Event{Type: EventSessionMatched, Data: p}
}

func NewOpponentProgress(p OpponentProgress) Event {
	return Event{Type: EventOpponentProgress, Data: p}
}

func NewSessionResults(p SessionResults) Event {
	return Event{Type: EventSessionResults, Data: p}
}

func NewMatchCancelled(reason string) Event {
	return Event{Type: EventMatchCancelled, Data: MatchCancelled{Reason: reason}}
}

func NewNotification(n Notification) Event {
	return Event{Type: EventNotification, Data: n}
}

func NewError(code, message string) Event {
	return Event{Type: EventError, Data: Error{Code: code, Message: message}}
}

// FromError converts an engine error into a client-visible error event.
func FromError(err error) Event {
	code := "internal"
	switch {
	case errors.Is(err, race.ErrNotFound):
		code = "not_found"
	case errors.Is(err, race.ErrAlreadyCompleted):
		code = "already_completed"
	case errors.Is(err, race.ErrDuplicateQueueEntry):
		code = "duplicate_queue_entry"
	case errors.Is(err, race.ErrAlreadyInSession):
		code = "already_in_session"
	case errors.Is(err, race.ErrSessionClosed):
		code = "session_closed"
	case errors.Is(err, race.ErrNotParticipant):
		code = "not_participant"
	case errors.Is(err, race.ErrInvalidCommand):
		code = "invalid_command"
	}
	return NewError(code, err.Error())
}
