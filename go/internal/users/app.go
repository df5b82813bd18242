package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/rs/zerolog/log"
)

// UsersRepository defines what the app layer needs from the repository
type UsersRepository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*race.Account, error)
	ApplyStats(ctx context.Context, id uuid.UUID, u race.StatsUpdate) error
	ApplyRating(ctx context.Context, id uuid.UUID, u race.RatingUpdate) error
}

// App is the account store used by the race engine
type App struct {
	repo UsersRepository
}

// NewApp creates a new users App
func NewApp(repo UsersRepository) *App {
	return &App{
		repo: repo,
	}
}

// FindUserByID returns the account. Malformed IDs are reported as not found.
func (a *App) FindUserByID(ctx context.Context, id string) (race.Account, error) {
	uid, err := parseID(id)
	if err != nil {
		return race.Account{}, err
	}
	user, err := a.repo.GetUser(ctx, uid)
	if err != nil {
		return race.Account{}, err
	}
	return *user, nil
}

// ApplyStatsUpdate folds a finished race into the user's aggregate stats
func (a *App) ApplyStatsUpdate(ctx context.Context, userID string, u race.StatsUpdate) error {
	uid, err := parseID(userID)
	if err != nil {
		return err
	}
	if err := a.repo.ApplyStats(ctx, uid, u); err != nil {
		return err
	}

	log.Debug().
		Str("user_id", userID).
		Int("xp_delta", u.XPDelta).
		Int("win_increment", u.WinIncrement).
		Msg("applied stats update")
	return nil
}

// ApplyRatingUpdate stores the result of a ranked session
func (a *App) ApplyRatingUpdate(ctx context.Context, userID string, u race.RatingUpdate) error {
	uid, err := parseID(userID)
	if err != nil {
		return err
	}
	if err := a.repo.ApplyRating(ctx, uid, u); err != nil {
		return err
	}

	log.Info().
		Str("user_id", userID).
		Int("rating", u.NewRating).
		Str("tier", u.RankTier).
		Str("outcome", string(u.Outcome)).
		Msg("applied rating update")
	return nil
}

func parseID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", id, race.ErrNotFound)
	}
	return uid, nil
}
