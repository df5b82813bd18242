// Package admin serves operator views of the race engine over connect.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/mcdev12/typerace/go/internal/race/orchestrator"
	"github.com/mcdev12/typerace/go/internal/race/session"
	"github.com/mcdev12/typerace/go/internal/rpcjson"
	"github.com/samber/lo"
)

const ServiceName = "typerace.admin.v1.AdminService"

const (
	GetQueueStatsProcedure = "/" + ServiceName + "/GetQueueStats"
	GetSessionProcedure    = "/" + ServiceName + "/GetSession"
)

var errMissingSessionID = errors.New("session_id is required")

// Engine is the read side of the orchestrator.
type Engine interface {
	QueueStats() orchestrator.QueueStats
	Session(id string) (*session.Session, error)
}

type GetQueueStatsRequest struct{}

type GetSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type ParticipantSnapshot struct {
	UserID      string     `json:"userId"`
	DisplayName string     `json:"displayName"`
	Rating      int        `json:"rating,omitempty"`
	CharIndex   int        `json:"charIndex"`
	WPM         float64    `json:"wpm"`
	Accuracy    float64    `json:"accuracy"`
	CompletedAt *time.Time `json:"completedAt"`
}

type SessionSnapshot struct {
	ID             string                `json:"id"`
	Kind           race.Kind             `json:"kind"`
	State          session.State         `json:"state"`
	TextID         string                `json:"textId"`
	ScheduledStart time.Time             `json:"scheduledStart"`
	LastActivity   time.Time             `json:"lastActivity"`
	AverageRating  int                   `json:"averageRating,omitempty"`
	RankTier       string                `json:"rankTier,omitempty"`
	Participants   []ParticipantSnapshot `json:"participants"`
}

type Service struct {
	engine Engine
}

func NewService(engine Engine) *Service {
	return &Service{engine: engine}
}

// Handler returns the mount path and handler for the service.
func (s *Service) Handler() (string, http.Handler) {
	opts := rpcjson.HandlerOptions()
	mux := http.NewServeMux()
	mux.Handle(GetQueueStatsProcedure, connect.NewUnaryHandler(GetQueueStatsProcedure, s.GetQueueStats, opts...))
	mux.Handle(GetSessionProcedure, connect.NewUnaryHandler(GetSessionProcedure, s.GetSession, opts...))
	return "/" + ServiceName + "/", mux
}

func (s *Service) GetQueueStats(_ context.Context, _ *connect.Request[GetQueueStatsRequest]) (*connect.Response[orchestrator.QueueStats], error) {
	stats := s.engine.QueueStats()
	return connect.NewResponse(&stats), nil
}

// GetSession returns a live snapshot of one session. Closed sessions are gone.
func (s *Service) GetSession(_ context.Context, req *connect.Request[GetSessionRequest]) (*connect.Response[SessionSnapshot], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingSessionID)
	}

	sess, err := s.engine.Session(req.Msg.SessionID)
	if err != nil {
		return nil, connect.NewError(rpcjson.Code(err, race.ErrNotFound), err)
	}

	progress := sess.Progress()
	return connect.NewResponse(&SessionSnapshot{
		ID:             sess.ID,
		Kind:           sess.Kind,
		State:          sess.State(),
		TextID:         sess.Text.ID,
		ScheduledStart: sess.ScheduledStart,
		LastActivity:   sess.LastActivity(),
		AverageRating:  sess.AverageRating,
		RankTier:       sess.RankTier,
		Participants: lo.Map(sess.Participants(), func(p session.Participant, _ int) ParticipantSnapshot {
			pr := progress[p.UserID]
			return ParticipantSnapshot{
				UserID:      p.UserID,
				DisplayName: p.DisplayName,
				Rating:      p.Rating,
				CharIndex:   pr.CharIndex,
				WPM:         pr.WPM,
				Accuracy:    pr.Accuracy,
				CompletedAt: p.CompletedAt,
			}
		}),
	}), nil
}
