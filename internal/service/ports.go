package service

import (
	"context"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/ledger"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/role"
)

type CandidateDirectory interface {
	FindCandidate(ctx context.Context, id string) (*domain.Candidate, error)
}

// MatchHost opens and closes arena instances on the world server.
type MatchHost interface {
	StartMatch(ctx context.Context, ticket domain.MatchTicket) error
	EndMatchUnrated(ctx context.Context, matchID string) error
}

type TeamStore interface {
	ledger.TeamStore
	GetByName(ctx context.Context, name string) (*domain.Team, error)
	ListByMatch(ctx context.Context, matchID string) ([]domain.Team, error)
	Create(ctx context.Context, team *domain.Team) error
	Delete(ctx context.Context, id int64) error
}

type HistoryStore interface {
	GetByMember(ctx context.Context, memberID string, limit int) ([]domain.RatingEvent, error)
}

type RatingLedger interface {
	ledger.Ledger
	ResetWeek(ctx context.Context) error
	ArenaPoints(team *domain.Team, base float64) float64
}

// TalentInspector classifies candidates and checks forbidden talent
// investment.
type TalentInspector interface {
	Classify(c *domain.Candidate) role.Category
	HasForbiddenInvestment(c *domain.Candidate) bool
}
