package events

import (
	"time"

	"github.com/mcdev12/typerace/go/internal/race"
)

// Durable event types written to the race outbox and relayed to the bus.
const (
	OutboxRaceFinished = "RaceFinished"
)

// RaceFinishedPayload is published once per closed session.
type RaceFinishedPayload struct {
	SessionID     string              `json:"sessionId"`
	Kind          race.Kind           `json:"kind"`
	TextID        string              `json:"textId"`
	WinnerID      *string             `json:"winnerId"`
	IsDraw        bool                `json:"isDraw"`
	StartedAt     time.Time           `json:"startedAt"`
	EndedAt       time.Time           `json:"endedAt"`
	Forfeited     []string            `json:"forfeited,omitempty"`
	RatingChanges []race.RatingChange `json:"ratingChanges,omitempty"`
	AverageRating int                 `json:"averageRating,omitempty"`
	RankTier      string              `json:"rankTier,omitempty"`
}

// NewRaceFinishedPayload builds the outbox payload for a session summary.
func NewRaceFinishedPayload(sessionID string, s race.SessionSummary) RaceFinishedPayload {
	return RaceFinishedPayload{
		SessionID:     sessionID,
		Kind:          s.Kind,
		TextID:        s.TextID,
		WinnerID:      s.WinnerID,
		IsDraw:        s.IsDraw,
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		Forfeited:     s.Forfeited,
		RatingChanges: s.RatingChanges,
		AverageRating: s.AverageRating,
		RankTier:      s.RankTier,
	}
}
