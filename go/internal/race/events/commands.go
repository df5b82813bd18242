// Package events defines the messages exchanged with race clients.
//
// Every message on the wire is an envelope {"type": ..., "data": {...}}.
// Inbound commands are a closed set of variants that are validated when decoded;
// anything else is rejected before it reaches the race engine.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/samber/lo"
)

var validate = validator.New()

// Envelope is the wire shape of every message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandType names an inbound command.
type CommandType string

const (
	CommandJoinCasualQueue  CommandType = "join-casual-queue"
	CommandLeaveCasualQueue CommandType = "leave-casual-queue"
	CommandJoinRankedQueue  CommandType = "join-ranked-queue"
	CommandLeaveRankedQueue CommandType = "leave-ranked-queue"
	CommandJoinPrivateLobby CommandType = "join-private-lobby"
	CommandProgressUpdate   CommandType = "progress-update"
	CommandCompletion       CommandType = "completion"
)

// Command is implemented by every inbound variant.
type Command interface {
	CommandType() CommandType
}

type JoinCasualQueue struct{}

type LeaveCasualQueue struct{}

type JoinRankedQueue struct{}

type LeaveRankedQueue struct{}

type JoinPrivateLobby struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
}

type ProgressUpdate struct {
	SessionID string  `json:"sessionId" validate:"required,uuid"`
	CharIndex int     `json:"charIndex" validate:"gte=0"`
	WPM       float64 `json:"wpm" validate:"gte=0"`
	Accuracy  float64 `json:"accuracy" validate:"gte=0,lte=100"`
}

type Completion struct {
	SessionID   string        `json:"sessionId" validate:"required,uuid"`
	WPM         float64       `json:"wpm" validate:"gte=0"`
	Accuracy    float64       `json:"accuracy" validate:"gte=0,lte=100"`
	Errors      int           `json:"errors" validate:"gte=0"`
	ElapsedTime float64       `json:"elapsedTime" validate:"gte=0"`
	ReplayTrace []ReplayPoint `json:"replayTrace" validate:"max=20000,dive"`
}

// ReplayPoint is one (elapsedMs, charIndex) keystroke sample.
type ReplayPoint struct {
	ElapsedMs int64 `json:"elapsedMs" validate:"gte=0"`
	CharIndex int   `json:"charIndex" validate:"gte=0"`
}

func (JoinCasualQueue) CommandType() CommandType  { return CommandJoinCasualQueue }
func (LeaveCasualQueue) CommandType() CommandType { return CommandLeaveCasualQueue }
func (JoinRankedQueue) CommandType() CommandType  { return CommandJoinRankedQueue }
func (LeaveRankedQueue) CommandType() CommandType { return CommandLeaveRankedQueue }
func (JoinPrivateLobby) CommandType() CommandType { return CommandJoinPrivateLobby }
func (ProgressUpdate) CommandType() CommandType   { return CommandProgressUpdate }
func (Completion) CommandType() CommandType       { return CommandCompletion }

// Trace converts the wire replay trace to the domain form.
func (c Completion) Trace() []race.ReplayPoint {
	return lo.Map(c.ReplayTrace, func(p ReplayPoint, _ int) race.ReplayPoint {
		return race.ReplayPoint{ElapsedMs: p.ElapsedMs, CharIndex: p.CharIndex}
	})
}

// Decode parses and validates one inbound message.
// Errors wrap race.ErrInvalidCommand.
func Decode(raw []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", race.ErrInvalidCommand, err)
	}

	switch CommandType(env.Type) {
	case CommandJoinCasualQueue:
		return JoinCasualQueue{}, nil
	case CommandLeaveCasualQueue:
		return LeaveCasualQueue{}, nil
	case CommandJoinRankedQueue:
		return JoinRankedQueue{}, nil
	case CommandLeaveRankedQueue:
		return LeaveRankedQueue{}, nil
	case CommandJoinPrivateLobby:
		return decodeInto[JoinPrivateLobby](env)
	case CommandProgressUpdate:
		return decodeInto[ProgressUpdate](env)
	case CommandCompletion:
		return decodeInto[Completion](env)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", race.ErrInvalidCommand, env.Type)
	}
}

func decodeInto[T Command](env Envelope) (Command, error) {
	var cmd T
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: %s requires data", race.ErrInvalidCommand, env.Type)
	}
	if err := json.Unmarshal(env.Data, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", race.ErrInvalidCommand, env.Type, err)
	}
	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", race.ErrInvalidCommand, env.Type, err)
	}
	return cmd, nil
}
