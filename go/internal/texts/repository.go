// Package texts reads race passages from Postgres.
package texts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/mcdev12/typerace/go/internal/sqlutil"
)

const randomTextSQL = `
SELECT id::text, content, difficulty
FROM texts
WHERE difficulty = $1
ORDER BY random()
LIMIT 1`

type Repository struct {
	db sqlutil.DBTX
}

func NewRepository(db sqlutil.DBTX) *Repository {
	return &Repository{db: db}
}

// FindTextByDifficulty returns a random passage of the given difficulty.
func (r *Repository) FindTextByDifficulty(ctx context.Context, difficulty string) (race.Text, error) {
	var t race.Text
	err := r.db.QueryRow(ctx, randomTextSQL, difficulty).Scan(&t.ID, &t.Content, &t.Difficulty)
	if errors.Is(err, pgx.ErrNoRows) {
		return race.Text{}, fmt.Errorf("text with difficulty %q: %w", difficulty, race.ErrNotFound)
	}
	if err != nil {
		return race.Text{}, fmt.Errorf("failed to find text: %w", err)
	}
	return t, nil
}
