package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/service"
)

type matchResponse struct {
	ID        string                     `json:"id"`
	Bracket   int                        `json:"bracket"`
	Rated     bool                       `json:"rated"`
	Status    string                     `json:"status"`
	Teams     [domain.SideCount]int64    `json:"teams"`
	Snapshot  [domain.SideCount]int      `json:"snapshot"`
	Rosters   [domain.SideCount][]string `json:"rosters"`
	Left      []string                   `json:"left,omitempty"`
	CreatedAt time.Time                  `json:"created_at"`
}

func (s *ArenaServer) getMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.arena.Match(chi.URLParam(r, "matchID"))
	if err != nil {
		serviceError(w, r, err)
		return
	}

	resp := matchResponse{
		ID:        m.ID,
		Bracket:   m.Bracket,
		Rated:     m.Rated,
		Status:    string(m.Status),
		Teams:     m.Teams,
		Snapshot:  m.Snapshot,
		Rosters:   m.Rosters,
		CreatedAt: m.CreatedAt,
	}
	for _, id := range m.Members() {
		if m.Left[id] {
			resp.Left = append(resp.Left, id)
		}
	}
	writeJSON(w, r, http.StatusOK, envelope{"match": resp})
}

// matchEventRequest is one lifecycle notification from the world server.
// Ratings carries the match teams' current ratings for "left" and their
// final ratings for "ended".
type matchEventRequest struct {
	Type     string                 `json:"type"`
	MemberID string                 `json:"member_id,omitempty"`
	Winner   string                 `json:"winner,omitempty"`
	Ratings  *[domain.SideCount]int `json:"ratings,omitempty"`
}

const (
	eventEntered  = "entered"
	eventStarted  = "started"
	eventDeclined = "declined"
	eventLeft     = "left"
	eventEnded    = "ended"
	eventExited   = "exited"
)

func parseSide(s string) (domain.Side, error) {
	switch s {
	case "A", "a":
		return domain.SideA, nil
	case "B", "b":
		return domain.SideB, nil
	}
	return domain.SideA, fmt.Errorf("invalid side %q", s)
}

func (s *ArenaServer) matchEvent(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")

	var req matchEventRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}

	needsMember := req.Type == eventEntered || req.Type == eventDeclined || req.Type == eventLeft || req.Type == eventExited
	if needsMember && req.MemberID == "" {
		badRequest(w, r, errors.New("member_id is required"))
		return
	}

	ctx := r.Context()
	var err error
	switch req.Type {
	case eventEntered:
		err = s.arena.OnMemberEntered(matchID, req.MemberID)
	case eventStarted:
		err = s.arena.OnMatchStarted(ctx, matchID)
	case eventDeclined:
		err = s.arena.OnInviteDeclined(ctx, matchID, req.MemberID)
	case eventLeft:
		err = s.arena.OnMemberLeft(ctx, matchID, req.MemberID, req.Ratings)
	case eventEnded:
		winner, perr := parseSide(req.Winner)
		if perr != nil {
			badRequest(w, r, perr)
			return
		}
		if req.Ratings == nil {
			badRequest(w, r, errors.New("ratings are required"))
			return
		}
		err = s.arena.OnMatchEnded(ctx, matchID, winner, *req.Ratings)
	case eventExited:
		err = s.arena.OnMemberExited(ctx, matchID, req.MemberID)
	default:
		badRequest(w, r, fmt.Errorf("unknown event type %q", req.Type))
		return
	}
	if err != nil {
		serviceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

var _ Arena = (*service.Orchestrator)(nil)
