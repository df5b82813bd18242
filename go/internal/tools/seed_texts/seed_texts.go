package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/typerace/go/internal/dbconfig"
)

// Text mirrors the JSON snapshot.
type Text struct {
	Content    string `json:"content" validate:"required,min=20"`
	Difficulty string `json:"difficulty" validate:"required,oneof=easy medium hard"`
}

func main() {
	path := "go/internal/assets/texts.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load and validate the JSON snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var texts []Text
	if err := json.Unmarshal(data, &texts); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}
	validate := validator.New()

	// 2) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert and count; identical passages are skipped
	var (
		total    = len(texts)
		inserted int
		skipped  int
		errs     int
	)

	for i, t := range texts {
		if err := validate.Struct(t); err != nil {
			fmt.Fprintf(os.Stderr, "invalid text #%d: %v\n", i, err)
			errs++
			continue
		}
		cmdTag, err := pool.Exec(context.Background(), `
            INSERT INTO texts (content, difficulty)
            VALUES ($1, $2)
            ON CONFLICT DO NOTHING
        `, t.Content, t.Difficulty)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting text #%d: %v\n", i, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Texts seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}
