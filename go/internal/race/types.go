package race

import "time"

// Kind identifies how a session was formed.
type Kind string

const (
	KindCasual  Kind = "casual"
	KindRanked  Kind = "ranked"
	KindPrivate Kind = "private"
)

// QueueKind identifies the waiting pool a user is in.
type QueueKind string

const (
	QueueCasual  QueueKind = "casual"
	QueueRanked  QueueKind = "ranked"
	QueuePrivate QueueKind = "private"
)

// Kind returns the session kind formed from this queue.
func (q QueueKind) Kind() Kind {
	switch q {
	case QueueRanked:
		return KindRanked
	case QueuePrivate:
		return KindPrivate
	default:
		return KindCasual
	}
}

// Outcome is a ranked result from one participant's point of view.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// Score maps an outcome to the actual score used by the rating engine.
func (o Outcome) Score() float64 {
	switch o {
	case OutcomeWin:
		return 1.0
	case OutcomeDraw:
		return 0.5
	default:
		return 0.0
	}
}

// Account is the subset of a user record the race engine reads.
type Account struct {
	ID            string
	Username      string
	DisplayName   string
	Rating        int
	HighestRating int
	RankTier      string
	Stats         Stats
}

// Stats are the aggregate typing stats of a user.
type Stats struct {
	BestWPM        float64
	AvgWPM         float64
	XP             int
	RacesCompleted int
	RacesWon       int
}

// Text is a race passage.
type Text struct {
	ID         string
	Content    string
	Difficulty string
}

// ReplayPoint is one keystroke sample of a participant's race.
type ReplayPoint struct {
	ElapsedMs int64 `json:"elapsedMs"`
	CharIndex int   `json:"charIndex"`
}

// RatingChange records one participant's rating movement in a ranked session.
type RatingChange struct {
	UserID    string  `json:"userId"`
	OldRating int     `json:"oldRating"`
	NewRating int     `json:"newRating"`
	Change    int     `json:"change"`
	Outcome   Outcome `json:"outcome"`
}

// ParticipantResult is what gets persisted when one participant finishes.
type ParticipantResult struct {
	WPM         float64
	Accuracy    float64
	Errors      int
	ElapsedTime float64
	CompletedAt time.Time
	ReplayTrace []ReplayPoint
}

// SessionSummary is what gets persisted when a session closes.
type SessionSummary struct {
	Kind          Kind
	TextID        string
	WinnerID      *string
	IsDraw        bool
	StartedAt     time.Time
	EndedAt       time.Time
	Forfeited     []string
	RatingChanges []RatingChange
	AverageRating int
	RankTier      string
}

// StatsUpdate is applied to a user's aggregate stats. Nil fields are left untouched.
type StatsUpdate struct {
	BestWPM                 *float64
	AvgWPM                  *float64
	XPDelta                 int
	RacesCompletedIncrement int
	WinIncrement            int
}

// RatingUpdate is applied to a user's ranked fields after a rated session.
type RatingUpdate struct {
	NewRating int
	RankTier  string
	Outcome   Outcome
}
