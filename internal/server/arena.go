// Package server exposes the solo queue to the world server over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/api"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/constants"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/middleware"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/queue"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/service"
	"github.com/rs/zerolog"
)

// Arena is the slice of the orchestrator the HTTP surface drives.
type Arena interface {
	CreateTeam(ctx context.Context, candidateID string) (*domain.Team, error)
	DisbandTeam(ctx context.Context, candidateID string) error
	GetTeam(ctx context.Context, id int64) (*domain.Team, error)
	ArenaPoints(ctx context.Context, teamID int64, base float64) (float64, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.Team, error)
	RatingHistory(ctx context.Context, memberID string, limit int) ([]domain.RatingEvent, error)
	ResetWeek(ctx context.Context) error

	JoinQueue(ctx context.Context, req service.JoinRequest) (*queue.Entry, error)
	LeaveQueue(ctx context.Context, memberID string) error
	QueueDepth(ctx context.Context) (service.QueueDepth, error)

	Match(matchID string) (service.Match, error)
	OnMemberEntered(matchID, memberID string) error
	OnMatchStarted(ctx context.Context, matchID string) error
	OnInviteDeclined(ctx context.Context, matchID, memberID string) error
	OnMemberLeft(ctx context.Context, matchID, memberID string, current *[domain.SideCount]int) error
	OnMatchEnded(ctx context.Context, matchID string, winner domain.Side, final [domain.SideCount]int) error
	OnMemberExited(ctx context.Context, matchID, memberID string) error
}

// Upstream reports the world server's rate limit budget.
type Upstream interface {
	GetRateLimitInfo() api.RateLimitInfo
}

type ArenaServer struct {
	arena    Arena
	upstream Upstream
	logger   zerolog.Logger
}

func NewArenaServer(arena *service.Orchestrator, world *api.WorldClient, logger zerolog.Logger) *ArenaServer {
	return newArenaServer(arena, world, logger)
}

func newArenaServer(arena Arena, upstream Upstream, logger zerolog.Logger) *ArenaServer {
	return &ArenaServer{arena: arena, upstream: upstream, logger: logger}
}

func (s *ArenaServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(chimw.Timeout(constants.RequestTimeout))

	r.Get("/health", s.health)

	r.Route("/teams", func(r chi.Router) {
		r.Post("/", s.createTeam)
		r.Delete("/{candidateID}", s.disbandTeam)
		r.Get("/{teamID}", s.getTeam)
		r.Get("/{teamID}/points", s.arenaPoints)
	})
	r.Get("/leaderboard", s.leaderboard)
	r.Get("/members/{memberID}/history", s.ratingHistory)

	r.Route("/queue", func(r chi.Router) {
		r.Post("/", s.joinQueue)
		r.Delete("/{candidateID}", s.leaveQueue)
		r.Get("/depth", s.queueDepth)
	})

	r.Route("/matches/{matchID}", func(r chi.Router) {
		r.Get("/", s.getMatch)
		r.Post("/events", s.matchEvent)
	})

	r.Post("/admin/week-reset", s.resetWeek)
	return r
}

func (s *ArenaServer) health(w http.ResponseWriter, r *http.Request) {
	resp := envelope{"status": "ok"}
	if s.upstream != nil {
		resp["world_api"] = s.upstream.GetRateLimitInfo()
	}
	writeJSON(w, r, http.StatusOK, resp)
}

type teamResponse struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Kind        string           `json:"kind"`
	CaptainID   string           `json:"captain_id"`
	Rating      int              `json:"rating"`
	Rank        int              `json:"rank"`
	SeasonGames int              `json:"season_games"`
	SeasonWins  int              `json:"season_wins"`
	WeekGames   int              `json:"week_games"`
	WeekWins    int              `json:"week_wins"`
	Members     []memberResponse `json:"members,omitempty"`
}

type memberResponse struct {
	ID                  string `json:"id"`
	PersonalRating      int    `json:"personal_rating"`
	SeasonGames         int    `json:"season_games"`
	SeasonWins          int    `json:"season_wins"`
	WeekGames           int    `json:"week_games"`
	WeekWins            int    `json:"week_wins"`
	MatchmakerRating    int    `json:"matchmaker_rating"`
	MaxMatchmakerRating int    `json:"max_matchmaker_rating"`
}

func toTeamResponse(t *domain.Team) teamResponse {
	resp := teamResponse{
		ID:          t.ID,
		Name:        t.Name,
		Kind:        string(t.Kind),
		CaptainID:   t.CaptainID,
		Rating:      t.Rating,
		Rank:        t.Rank,
		SeasonGames: t.SeasonGames,
		SeasonWins:  t.SeasonWins,
		WeekGames:   t.WeekGames,
		WeekWins:    t.WeekWins,
	}
	for _, m := range t.Members {
		resp.Members = append(resp.Members, memberResponse{
			ID:                  m.ID,
			PersonalRating:      m.PersonalRating,
			SeasonGames:         m.SeasonGames,
			SeasonWins:          m.SeasonWins,
			WeekGames:           m.WeekGames,
			WeekWins:            m.WeekWins,
			MatchmakerRating:    m.MatchmakerRating,
			MaxMatchmakerRating: m.MaxMatchmakerRating,
		})
	}
	return resp
}

type candidateRequest struct {
	CandidateID string `json:"candidate_id"`
}

func (s *ArenaServer) createTeam(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if req.CandidateID == "" {
		badRequest(w, r, errors.New("candidate_id is required"))
		return
	}

	team, err := s.arena.CreateTeam(r.Context(), req.CandidateID)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, envelope{"team": toTeamResponse(team)})
}

func (s *ArenaServer) disbandTeam(w http.ResponseWriter, r *http.Request) {
	if err := s.arena.DisbandTeam(r.Context(), chi.URLParam(r, "candidateID")); err != nil {
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *ArenaServer) getTeam(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "teamID")
	if err != nil {
		badRequest(w, r, err)
		return
	}

	team, err := s.arena.GetTeam(r.Context(), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, envelope{"team": toTeamResponse(team)})
}

func (s *ArenaServer) arenaPoints(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "teamID")
	if err != nil {
		badRequest(w, r, err)
		return
	}
	base, err := queryFloat(r, "base")
	if err != nil {
		badRequest(w, r, err)
		return
	}

	points, err := s.arena.ArenaPoints(r.Context(), id, base)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, envelope{"team_id": id, "points": points})
}

func (s *ArenaServer) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", constants.LeaderboardSize)
	if err != nil {
		badRequest(w, r, err)
		return
	}

	teams, err := s.arena.Leaderboard(r.Context(), limit)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	out := make([]teamResponse, 0, len(teams))
	for i := range teams {
		out = append(out, toTeamResponse(&teams[i]))
	}
	writeJSON(w, r, http.StatusOK, envelope{"teams": out})
}

type ratingEventResponse struct {
	EventID               string    `json:"event_id"`
	TeamID                int64     `json:"team_id"`
	Kind                  string    `json:"kind"`
	Delta                 int       `json:"delta"`
	RatingAfter           int       `json:"rating_after"`
	MatchmakerRatingAfter int       `json:"matchmaker_rating_after"`
	CreatedAt             time.Time `json:"created_at"`
}

func (s *ArenaServer) ratingHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", constants.HistoryLimit)
	if err != nil {
		badRequest(w, r, err)
		return
	}

	events, err := s.arena.RatingHistory(r.Context(), chi.URLParam(r, "memberID"), limit)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	out := make([]ratingEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, ratingEventResponse{
			EventID:               e.EventID,
			TeamID:                e.TeamID,
			Kind:                  string(e.Kind),
			Delta:                 e.Delta,
			RatingAfter:           e.RatingAfter,
			MatchmakerRatingAfter: e.MatchmakerRatingAfter,
			CreatedAt:             e.CreatedAt,
		})
	}
	writeJSON(w, r, http.StatusOK, envelope{"events": out})
}

type joinQueueRequest struct {
	CandidateID string   `json:"candidate_id"`
	Group       []string `json:"group,omitempty"`
	Bracket     int      `json:"bracket"`
	Rated       bool     `json:"rated"`
}

func (s *ArenaServer) joinQueue(w http.ResponseWriter, r *http.Request) {
	var req joinQueueRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if req.CandidateID == "" {
		badRequest(w, r, errors.New("candidate_id is required"))
		return
	}

	entry, err := s.arena.JoinQueue(r.Context(), service.JoinRequest{
		Members: append([]string{req.CandidateID}, req.Group...),
		Bracket: req.Bracket,
		Rated:   req.Rated,
	})
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, envelope{
		"entry_id": entry.ID,
		"members":  entry.Members,
		"side":     entry.Side.String(),
		"rated":    entry.Rated,
	})
}

func (s *ArenaServer) leaveQueue(w http.ResponseWriter, r *http.Request) {
	if err := s.arena.LeaveQueue(r.Context(), chi.URLParam(r, "candidateID")); err != nil {
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *ArenaServer) queueDepth(w http.ResponseWriter, r *http.Request) {
	depth, err := s.arena.QueueDepth(r.Context())
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, depth)
}

func (s *ArenaServer) resetWeek(w http.ResponseWriter, r *http.Request) {
	if err := s.arena.ResetWeek(r.Context()); err != nil {
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
