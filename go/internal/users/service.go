package users

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mcdev12/typerace/go/internal/race"
	"github.com/mcdev12/typerace/go/internal/rpcjson"
)

// ProfileServiceName is the fully-qualified name of the profile service.
const ProfileServiceName = "typerace.user.v1.ProfileService"

// GetProfileProcedure is the route of the GetProfile RPC.
const GetProfileProcedure = "/" + ProfileServiceName + "/GetProfile"

var errMissingID = errors.New("id is required")

// UsersApp defines what the service layer needs from the users application
type UsersApp interface {
	FindUserByID(ctx context.Context, id string) (race.Account, error)
}

type GetProfileRequest struct {
	ID string `json:"id"`
}

type Profile struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	DisplayName    string  `json:"displayName"`
	Rating         int     `json:"rating"`
	HighestRating  int     `json:"highestRating"`
	RankTier       string  `json:"rankTier"`
	BestWPM        float64 `json:"bestWpm"`
	AvgWPM         float64 `json:"avgWpm"`
	XP             int     `json:"xp"`
	RacesCompleted int     `json:"racesCompleted"`
	RacesWon       int     `json:"racesWon"`
}

// Service exposes read-only race profiles over connect
type Service struct {
	app UsersApp
}

// NewService creates a new profile service
func NewService(app UsersApp) *Service {
	return &Service{
		app: app,
	}
}

// Handler returns the mount path and handler for the service.
func (s *Service) Handler() (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(GetProfileProcedure, connect.NewUnaryHandler(GetProfileProcedure, s.GetProfile, rpcjson.HandlerOptions()...))
	return "/" + ProfileServiceName + "/", mux
}

// GetProfile returns a user's rating and typing stats
func (s *Service) GetProfile(ctx context.Context, req *connect.Request[GetProfileRequest]) (*connect.Response[Profile], error) {
	if req.Msg.ID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingID)
	}

	a, err := s.app.FindUserByID(ctx, req.Msg.ID)
	if err != nil {
		return nil, connect.NewError(rpcjson.Code(err, race.ErrNotFound), err)
	}

	return connect.NewResponse(&Profile{
		ID:             a.ID,
		Username:       a.Username,
		DisplayName:    a.DisplayName,
		Rating:         a.Rating,
		HighestRating:  a.HighestRating,
		RankTier:       a.RankTier,
		BestWPM:        a.Stats.BestWPM,
		AvgWPM:         a.Stats.AvgWPM,
		XP:             a.Stats.XP,
		RacesCompleted: a.Stats.RacesCompleted,
		RacesWon:       a.Stats.RacesWon,
	}), nil
}
