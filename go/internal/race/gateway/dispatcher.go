package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/mcdev12/typerace/go/internal/race/events"
	"github.com/mcdev12/typerace/go/internal/race/orchestrator"
	"github.com/mcdev12/typerace/go/internal/race/session"
	"github.com/rs/zerolog/log"
)

// Engine is the race core as seen from the transport.
type Engine interface {
	JoinCasualQueue(ctx context.Context, connID, userID string) error
	LeaveCasualQueue(userID string)
	JoinRankedQueue(ctx context.Context, connID, userID string) error
	LeaveRankedQueue(userID string)
	JoinPrivateLobby(ctx context.Context, connID, userID, roomID string) error
	RecordProgress(sessionID, userID string, p session.Progress) error
	RecordCompletion(sessionID, userID string, c orchestrator.Completion) error
	Disconnect(userID, connID string)
}

const defaultRequestTimeout = 10 * time.Second

// Dispatcher decodes client messages and routes them to the engine.
type Dispatcher struct {
	engine  Engine
	timeout time.Duration
}

func NewDispatcher(engine Engine) *Dispatcher {
	return &Dispatcher{engine: engine, timeout: defaultRequestTimeout}
}

// HandleMessage runs one command. Messages of a connection are handled in
// the order they were read.
func (d *Dispatcher) HandleMessage(c *Connection, raw []byte) {
	cmd, err := events.Decode(raw)
	if err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Msg("rejected client message")
		c.Manager.sendTo(c, events.FromError(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.dispatch(ctx, c, cmd); err != nil {
		d.reportError(c, cmd, err)
	}
}

// HandleDisconnect drops the connection's queue entries.
func (d *Dispatcher) HandleDisconnect(c *Connection) {
	d.engine.Disconnect(c.UserID, c.ID)
}

func (d *Dispatcher) dispatch(ctx context.Context, c *Connection, cmd events.Command) error {
	switch cmd := cmd.(type) {
	case events.JoinCasualQueue:
		return d.engine.JoinCasualQueue(ctx, c.ID, c.UserID)
	case events.LeaveCasualQueue:
		d.engine.LeaveCasualQueue(c.UserID)
	case events.JoinRankedQueue:
		return d.engine.JoinRankedQueue(ctx, c.ID, c.UserID)
	case events.LeaveRankedQueue:
		d.engine.LeaveRankedQueue(c.UserID)
	case events.JoinPrivateLobby:
		return d.engine.JoinPrivateLobby(ctx, c.ID, c.UserID, cmd.RoomID)
	case events.ProgressUpdate:
		return d.engine.RecordProgress(cmd.SessionID, c.UserID, session.Progress{
			CharIndex: cmd.CharIndex,
			WPM:       cmd.WPM,
			Accuracy:  cmd.Accuracy,
		})
	case events.Completion:
		return d.engine.RecordCompletion(cmd.SessionID, c.UserID, orchestrator.Completion{
			WPM:         cmd.WPM,
			Accuracy:    cmd.Accuracy,
			Errors:      cmd.Errors,
			ElapsedTime: cmd.ElapsedTime,
			ReplayTrace: cmd.Trace(),
		})
	}
	return nil
}

func (d *Dispatcher) reportError(c *Connection, cmd events.Command, err error) {
	logger := log.With().
		Err(err).
		Str("connection_id", c.ID).
		Str("user_id", c.UserID).
		Str("command", string(cmd.CommandType())).
		Logger()

	// Progress is broadcast only; nothing to answer.
	if cmd.CommandType() == events.CommandProgressUpdate {
		logger.Debug().Msg("dropped progress update")
		return
	}

	if errors.Is(err, race.ErrNotFound) {
		logger.Warn().Msg("command failed")
	} else {
		logger.Error().Msg("command failed")
	}
	c.Manager.sendTo(c, events.FromError(err))
}
