package users

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/mcdev12/typerace/go/internal/rpcjson"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		v := reflect.ValueOf(r.vals[i])
		target := reflect.ValueOf(d).Elem()
		if !v.IsValid() {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(v)
	}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	row      fakeRow
	affected int64
	execs    []execCall
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("UPDATE " + strconv.FormatInt(f.affected, 10)), nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not used")
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return f.row
}

var userID = uuid.MustParse("9b2d6c1e-52f1-4d6f-8f3e-6c0a5f3e2b10")

func userRow(displayName *string) fakeRow {
	return fakeRow{vals: []any{
		userID.String(), "speedy", displayName, 1320, 1400, "Gold",
		112.0, 87.0, 940, 41, 17,
	}}
}

func TestFindUserByID(t *testing.T) {
	req := require.New(t)
	name := "Speedy G"
	app := NewApp(NewRepository(&fakeDB{row: userRow(&name)}))

	a, err := app.FindUserByID(context.Background(), userID.String())
	req.NoError(err)
	req.Equal(race.Account{
		ID: userID.String(), Username: "speedy", DisplayName: "Speedy G",
		Rating: 1320, HighestRating: 1400, RankTier: "Gold",
		Stats: race.Stats{BestWPM: 112, AvgWPM: 87, XP: 940, RacesCompleted: 41, RacesWon: 17},
	}, a)
}

func TestFindUserByID_NullDisplayName(t *testing.T) {
	app := NewApp(NewRepository(&fakeDB{row: userRow(nil)}))

	a, err := app.FindUserByID(context.Background(), userID.String())
	require.NoError(t, err)
	require.Empty(t, a.DisplayName)
}

func TestFindUserByID_NotFound(t *testing.T) {
	req := require.New(t)
	app := NewApp(NewRepository(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}}))

	_, err := app.FindUserByID(context.Background(), userID.String())
	req.ErrorIs(err, race.ErrNotFound)

	_, err = app.FindUserByID(context.Background(), "not-a-uuid")
	req.ErrorIs(err, race.ErrNotFound)
}

func TestApplyStatsUpdate(t *testing.T) {
	req := require.New(t)
	db := &fakeDB{affected: 1}
	app := NewApp(NewRepository(db))

	best, avg := 120.0, 90.0
	err := app.ApplyStatsUpdate(context.Background(), userID.String(), race.StatsUpdate{
		BestWPM: &best, AvgWPM: &avg, XPDelta: 12, RacesCompletedIncrement: 1,
	})
	req.NoError(err)
	req.Len(db.execs, 1)
	req.Equal([]any{userID, &best, &avg, 12, 1, 0}, db.execs[0].args)
	req.Contains(db.execs[0].sql, "COALESCE($2, best_wpm)")

	db.affected = 0
	err = app.ApplyStatsUpdate(context.Background(), userID.String(), race.StatsUpdate{WinIncrement: 1})
	req.ErrorIs(err, race.ErrNotFound)
}

func TestApplyRatingUpdate(t *testing.T) {
	tests := []struct {
		name    string
		outcome race.Outcome
		want    []any
	}{
		{name: "win", outcome: race.OutcomeWin, want: []any{userID, 1180, "Silver", 1, 0, 0}},
		{name: "loss", outcome: race.OutcomeLoss, want: []any{userID, 1180, "Silver", 0, 1, 0}},
		{name: "draw", outcome: race.OutcomeDraw, want: []any{userID, 1180, "Silver", 0, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			db := &fakeDB{affected: 1}
			app := NewApp(NewRepository(db))

			err := app.ApplyRatingUpdate(context.Background(), userID.String(), race.RatingUpdate{
				NewRating: 1180, RankTier: "Silver", Outcome: tt.outcome,
			})
			req.NoError(err)
			req.Equal(tt.want, db.execs[0].args)
			req.Contains(db.execs[0].sql, "GREATEST(highest_rating, $2)")
			req.Contains(db.execs[0].sql, "ranked_draws   = ranked_draws + $6")
		})
	}
}

func TestService_GetProfile(t *testing.T) {
	req := require.New(t)
	name := "Speedy G"
	svc := NewService(NewApp(NewRepository(&fakeDB{row: userRow(&name)})))

	mux := http.NewServeMux()
	mux.Handle(svc.Handler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := connect.NewClient[GetProfileRequest, Profile](srv.Client(), srv.URL+GetProfileProcedure, rpcjson.ClientOptions()...)

	res, err := client.CallUnary(context.Background(), connect.NewRequest(&GetProfileRequest{ID: userID.String()}))
	req.NoError(err)
	req.Equal("Speedy G", res.Msg.DisplayName)
	req.Equal(1320, res.Msg.Rating)
	req.Equal("Gold", res.Msg.RankTier)

	_, err = client.CallUnary(context.Background(), connect.NewRequest(&GetProfileRequest{}))
	req.Equal(connect.CodeInvalidArgument, connect.CodeOf(err))
}
