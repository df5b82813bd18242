package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/mcdev12/typerace/go/internal/sqlutil"
	"github.com/samber/lo"
)

const getUserSQL = `
SELECT id::text, username, display_name, rating, highest_rating, rank_tier,
       best_wpm, avg_wpm, xp, races_completed, races_won
FROM users
WHERE id = $1`

const applyStatsSQL = `
UPDATE users
SET best_wpm        = COALESCE($2, best_wpm),
    avg_wpm         = COALESCE($3, avg_wpm),
    xp              = xp + $4,
    races_completed = races_completed + $5,
    races_won       = races_won + $6,
    updated_at      = now()
WHERE id = $1`

const applyRatingSQL = `
UPDATE users
SET rating         = $2,
    highest_rating = GREATEST(highest_rating, $2),
    rank_tier      = $3,
    ranked_wins    = ranked_wins + $4,
    ranked_losses  = ranked_losses + $5,
    ranked_draws   = ranked_draws + $6,
    updated_at     = now()
WHERE id = $1`

// Repository implements user data access operations
type Repository struct {
	db sqlutil.DBTX
}

// NewRepository creates a new users repository
func NewRepository(db sqlutil.DBTX) *Repository {
	return &Repository{db: db}
}

// GetUser retrieves a user by ID
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*race.Account, error) {
	var (
		a           race.Account
		displayName *string
	)
	err := r.db.QueryRow(ctx, getUserSQL, id).Scan(
		&a.ID, &a.Username, &displayName, &a.Rating, &a.HighestRating, &a.RankTier,
		&a.Stats.BestWPM, &a.Stats.AvgWPM, &a.Stats.XP, &a.Stats.RacesCompleted, &a.Stats.RacesWon,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, race.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	a.DisplayName = lo.FromPtr(displayName)
	return &a, nil
}

// ApplyStats adds a stats update to a user
func (r *Repository) ApplyStats(ctx context.Context, id uuid.UUID, u race.StatsUpdate) error {
	tag, err := r.db.Exec(ctx, applyStatsSQL,
		id, u.BestWPM, u.AvgWPM, u.XPDelta, u.RacesCompletedIncrement, u.WinIncrement)
	if err != nil {
		return fmt.Errorf("failed to apply stats update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, race.ErrNotFound)
	}
	return nil
}

// ApplyRating stores a new rating and bumps the ranked counter for the outcome
func (r *Repository) ApplyRating(ctx context.Context, id uuid.UUID, u race.RatingUpdate) error {
	var wins, losses, draws int
	switch u.Outcome {
	case race.OutcomeWin:
		wins = 1
	case race.OutcomeLoss:
		losses = 1
	case race.OutcomeDraw:
		draws = 1
	}

	tag, err := r.db.Exec(ctx, applyRatingSQL, id, u.NewRating, u.RankTier, wins, losses, draws)
	if err != nil {
		return fmt.Errorf("failed to apply rating update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, race.ErrNotFound)
	}
	return nil
}
