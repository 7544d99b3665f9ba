// Package ledger applies rating outcomes to persistent solo teams.
//
// Every mutation is a read-modify-write of one persistent team held under
// that team's lock, followed by a rank recompute and a single atomic save of
// the team row, its member rows and one history row per touched member.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/invariant"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

var ErrNoPersistentTeam = errors.New("member has no persistent team")

// TeamStore is the persistence the ledger needs.
type TeamStore interface {
	Get(ctx context.Context, id int64) (*domain.Team, error)
	GetByMember(ctx context.Context, memberID string, category domain.Category) (*domain.Team, error)
	ListByCategory(ctx context.Context, category domain.Category, kind domain.TeamKind, limit int) ([]domain.Team, error)
	// SaveStats writes team, its members and events in one transaction.
	SaveStats(ctx context.Context, team *domain.Team, events []domain.RatingEvent) error
	HasEvent(ctx context.Context, eventID, memberID string) (bool, error)
	ResetWeek(ctx context.Context, category domain.Category) error
}

type Ledger interface {
	ApplyForfeitLoss(ctx context.Context, ev ForfeitEvent) error
	ApplyMatchResult(ctx context.Context, res MatchResult) error
	ApplyLeaveDuringActiveMatch(ctx context.Context, ev LeaveEvent) error
	RecomputeRank(ctx context.Context, team *domain.Team) (int, error)
}

type Config struct {
	Category              domain.Category
	PenaltyDuringMatch    int
	PenaltyBeforeStart    int
	ArenaPointsMultiplier float64
}

// ForfeitEvent is a member leaving or declining without a resolved winner.
type ForfeitEvent struct {
	EventID    string
	MemberID   string
	InProgress bool
}

type Participant struct {
	MemberID string
	Side     domain.Side
}

// MatchResult carries both ephemeral teams' final ratings as reported by the
// match host, and the ratings they were created with.
type MatchResult struct {
	EventID      string
	MatchID      string
	Winner       domain.Side
	Final        [domain.SideCount]int
	Snapshot     [domain.SideCount]int
	Participants []Participant
}

func (r MatchResult) Delta(side domain.Side) int {
	return r.Final[side] - r.Snapshot[side]
}

// LeaveEvent is a member quitting a live match. Current holds the ephemeral
// teams' ratings at the time of the leave.
type LeaveEvent struct {
	EventID  string
	MatchID  string
	MemberID string
	Side     domain.Side
	Current  [domain.SideCount]int
	Snapshot [domain.SideCount]int
}

func (e LeaveEvent) Delta() int {
	return e.Current[e.Side.Other()] - e.Snapshot[e.Side]
}

type RatingLedger struct {
	store  TeamStore
	cfg    Config
	guard  *invariant.Guard
	locks  *keyedMutex
	logger zerolog.Logger
	now    func() time.Time
}

func New(store TeamStore, cfg Config, guard *invariant.Guard, logger zerolog.Logger) *RatingLedger {
	if cfg.Category == 0 {
		cfg.Category = domain.CategorySolo3v3
	}
	return &RatingLedger{
		store:  store,
		cfg:    cfg,
		guard:  guard,
		locks:  newKeyedMutex(),
		logger: logger.With().Str("component", "ledger").Logger(),
		now:    time.Now,
	}
}

func (l *RatingLedger) ApplyForfeitLoss(ctx context.Context, ev ForfeitEvent) error {
	penalty := l.cfg.PenaltyBeforeStart
	if ev.InProgress {
		penalty = l.cfg.PenaltyDuringMatch
	}

	return l.mutate(ctx, ev.EventID, ev.MemberID, domain.EventForfeit, func(team *domain.Team, m *domain.Member) int {
		before := team.Rating
		team.Rating = floor(team.Rating - penalty)
		team.SeasonGames++
		team.WeekGames++

		m.SeasonGames++
		m.WeekGames++
		m.MatchmakerRating = floor(m.MatchmakerRating - penalty)
		return team.Rating - before
	})
}

func (l *RatingLedger) ApplyMatchResult(ctx context.Context, res MatchResult) error {
	var errs error
	for _, p := range res.Participants {
		won := p.Side == res.Winner
		delta := res.Delta(p.Side)
		kind := domain.EventMatchLoss
		if won {
			kind = domain.EventMatchWin
		}

		err := l.mutate(ctx, res.EventID, p.MemberID, kind, func(team *domain.Team, m *domain.Member) int {
			before := team.Rating
			team.Rating = floor(team.Rating + delta)
			team.SeasonGames++
			team.WeekGames++
			if won {
				team.SeasonWins++
				team.WeekWins++
			}

			m.SeasonGames = team.SeasonGames
			m.SeasonWins = team.SeasonWins
			m.WeekGames = team.WeekGames
			m.WeekWins = team.WeekWins
			m.MatchmakerRating = floor(m.MatchmakerRating + delta)
			if won && m.MatchmakerRating > m.MaxMatchmakerRating {
				m.MaxMatchmakerRating = m.MatchmakerRating
			}
			return team.Rating - before
		})
		if errors.Is(err, ErrNoPersistentTeam) {
			continue
		}
		errs = multierr.Append(errs, err)
	}
	return errs
}

func (l *RatingLedger) ApplyLeaveDuringActiveMatch(ctx context.Context, ev LeaveEvent) error {
	delta := ev.Delta()

	return l.mutate(ctx, ev.EventID, ev.MemberID, domain.EventLeaveActive, func(team *domain.Team, m *domain.Member) int {
		before := team.Rating
		team.Rating = floor(team.Rating - delta)
		team.SeasonGames++
		team.WeekGames++

		m.SeasonGames = team.SeasonGames
		m.WeekGames = team.WeekGames
		m.MatchmakerRating = floor(m.MatchmakerRating - delta)
		return team.Rating - before
	})
}

// RecomputeRank returns 1 plus the number of other persistent teams in the
// category with a strictly greater rating. Tied teams share a rank.
func (l *RatingLedger) RecomputeRank(ctx context.Context, team *domain.Team) (int, error) {
	teams, err := l.store.ListByCategory(ctx, team.Category, domain.TeamPersistent, -1)
	if err != nil {
		return 0, fmt.Errorf("failed to list teams for rank: %w", err)
	}

	rank := 1
	for _, other := range teams {
		if other.ID == team.ID {
			continue
		}
		rating := other.Rating
		if !l.guard.Check(rating >= 0, "team %d has negative rating %d", other.ID, rating) {
			rating = 0
		}
		if rating > team.Rating {
			rank++
		}
	}
	return rank, nil
}

// ResetWeek zeroes the weekly counters of every persistent team in the
// category.
func (l *RatingLedger) ResetWeek(ctx context.Context) error {
	if err := l.store.ResetWeek(ctx, l.cfg.Category); err != nil {
		return fmt.Errorf("failed to reset week: %w", err)
	}
	l.logger.Info().Int("category", int(l.cfg.Category)).Msg("weekly stats reset")
	return nil
}

// ArenaPoints scales the weekly points awarded to a team of this category.
func (l *RatingLedger) ArenaPoints(team *domain.Team, base float64) float64 {
	if team.Category != l.cfg.Category || l.cfg.ArenaPointsMultiplier <= 0 {
		return base
	}
	return math.Floor(base * l.cfg.ArenaPointsMultiplier)
}

type applyFunc func(team *domain.Team, m *domain.Member) int

func (l *RatingLedger) mutate(ctx context.Context, eventID, memberID string, kind domain.RatingEventKind, apply applyFunc) error {
	log := l.logger.With().
		Str("event_id", eventID).
		Str("member_id", memberID).
		Str("kind", string(kind)).
		Logger()

	found, err := l.store.GetByMember(ctx, memberID, l.cfg.Category)
	if errors.Is(err, domain.ErrTeamNotFound) {
		log.Warn().Msg("no persistent team for member, rating unchanged")
		return fmt.Errorf("%s for %s: %w", kind, memberID, ErrNoPersistentTeam)
	}
	if err != nil {
		return fmt.Errorf("failed to get team for member %s: %w", memberID, err)
	}

	unlock := l.locks.Lock(found.ID)
	defer unlock()

	done, err := l.store.HasEvent(ctx, eventID, memberID)
	if err != nil {
		return fmt.Errorf("failed to check rating event: %w", err)
	}
	if done {
		log.Debug().Msg("rating event already applied")
		return nil
	}

	// Re-read under the lock; the first read only located the team.
	team, err := l.store.Get(ctx, found.ID)
	if err != nil {
		return fmt.Errorf("failed to reload team %d: %w", found.ID, err)
	}
	if team.IsEphemeral() {
		log.Error().Int64("team_id", team.ID).Msg("member resolved to an ephemeral team")
		return fmt.Errorf("%s for %s: %w", kind, memberID, ErrNoPersistentTeam)
	}
	m := team.Member(memberID)
	if m == nil {
		log.Warn().Int64("team_id", team.ID).Msg("member missing from team roster")
		return fmt.Errorf("%s for %s: %w", kind, memberID, ErrNoPersistentTeam)
	}

	delta := apply(team, m)
	m.PersonalRating = team.Rating

	rank, err := l.RecomputeRank(ctx, team)
	if err != nil {
		return err
	}
	team.Rank = rank
	team.UpdatedAt = l.now()

	event := domain.RatingEvent{
		EventID:               eventID,
		TeamID:                team.ID,
		MemberID:              memberID,
		Kind:                  kind,
		Delta:                 delta,
		RatingAfter:           team.Rating,
		MatchmakerRatingAfter: m.MatchmakerRating,
		CreatedAt:             team.UpdatedAt,
	}
	if err := l.store.SaveStats(ctx, team, []domain.RatingEvent{event}); err != nil {
		return fmt.Errorf("failed to save team %d: %w", team.ID, err)
	}

	log.Info().
		Int64("team_id", team.ID).
		Int("delta", delta).
		Int("rating", team.Rating).
		Int("rank", team.Rank).
		Int("mmr", m.MatchmakerRating).
		Msg("rating updated")
	return nil
}

func floor(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
