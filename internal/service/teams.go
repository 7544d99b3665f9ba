package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/api"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/constants"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
)

// CreateTeam registers the candidate's persistent solo team, named after the
// candidate. Taken names get a numeric suffix.
func (o *Orchestrator) CreateTeam(ctx context.Context, candidateID string) (*domain.Team, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	cand, err := o.directory.FindCandidate(ctx, candidateID)
	if errors.Is(err, api.ErrCandidateNotFound) {
		return nil, ErrCandidateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up candidate %s: %w", candidateID, err)
	}
	if cand.Level < o.cfg.MinLevel {
		return nil, ErrLevelTooLow
	}

	_, err = o.store.GetByMember(ctx, candidateID, domain.CategorySolo3v3)
	if err == nil {
		return nil, ErrAlreadyInTeam
	}
	if !errors.Is(err, domain.ErrTeamNotFound) {
		return nil, fmt.Errorf("failed to check existing team: %w", err)
	}

	name, err := o.freeTeamName(ctx, cand.Name)
	if err != nil {
		return nil, err
	}

	team := &domain.Team{
		Name:      name,
		Category:  domain.CategorySolo3v3,
		Kind:      domain.TeamPersistent,
		CaptainID: candidateID,
		Rating:    constants.StartRating,
		Rank:      0,
		Members: []domain.Member{{
			ID:                  candidateID,
			PersonalRating:      constants.StartRating,
			MatchmakerRating:    constants.StartMatchmakerRating,
			MaxMatchmakerRating: constants.StartMatchmakerRating,
		}},
	}
	if err := o.store.Create(ctx, team); err != nil {
		o.logger.Error().Err(err).Str("candidate_id", candidateID).Msg("failed to create team")
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	if rank, err := o.ledger.RecomputeRank(ctx, team); err == nil {
		team.Rank = rank
	} else {
		o.logger.Warn().Err(err).Int64("team_id", team.ID).Msg("failed to rank new team")
	}

	o.logger.Info().Int64("team_id", team.ID).Str("name", team.Name).Str("captain_id", candidateID).Msg("team created")
	return team, nil
}

func (o *Orchestrator) freeTeamName(ctx context.Context, base string) (string, error) {
	if base == "" {
		return "", ErrCandidateNotFound
	}
	for i := 0; i < constants.TeamNameAttempts; i++ {
		suffix := ""
		if i > 0 {
			suffix = strconv.Itoa(i)
		}
		name := clipName(base, constants.TeamNameMaxLength-len(suffix)) + suffix
		_, err := o.store.GetByName(ctx, name)
		if errors.Is(err, domain.ErrTeamNotFound) {
			return name, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check team name: %w", err)
		}
	}
	return "", ErrTeamNameExhausted
}

func clipName(name string, limit int) string {
	runes := []rune(name)
	if len(runes) <= limit {
		return name
	}
	return string(runes[:limit])
}

// DisbandTeam deletes the captain's solo team. Queued or playing captains
// keep their team.
func (o *Orchestrator) DisbandTeam(ctx context.Context, candidateID string) error {
	if _, e := o.registry.FindMember(candidateID); e != nil {
		return ErrAlreadyQueued
	}
	if _, ok := o.matches.matchOf(candidateID); ok {
		return ErrInMatch
	}

	team, err := o.soloTeam(ctx, candidateID)
	if err != nil {
		return err
	}
	if team.CaptainID != candidateID {
		return ErrNoTeam
	}

	if err := o.store.Delete(ctx, team.ID); err != nil {
		return fmt.Errorf("failed to disband team: %w", err)
	}
	o.logger.Info().Int64("team_id", team.ID).Str("captain_id", candidateID).Msg("team disbanded")
	return nil
}

func (o *Orchestrator) GetTeam(ctx context.Context, id int64) (*domain.Team, error) {
	team, err := o.store.Get(ctx, id)
	if errors.Is(err, domain.ErrTeamNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

// Leaderboard lists persistent solo teams, best rating first.
func (o *Orchestrator) Leaderboard(ctx context.Context, limit int) ([]domain.Team, error) {
	if limit <= 0 || limit > constants.LeaderboardSize {
		limit = constants.LeaderboardSize
	}
	teams, err := o.store.ListByCategory(ctx, domain.CategorySolo3v3, domain.TeamPersistent, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return teams, nil
}

func (o *Orchestrator) RatingHistory(ctx context.Context, memberID string, limit int) ([]domain.RatingEvent, error) {
	if limit <= 0 || limit > constants.HistoryLimit {
		limit = constants.HistoryLimit
	}
	events, err := o.history.GetByMember(ctx, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load rating history: %w", err)
	}
	return events, nil
}

// ArenaPoints returns the weekly points for a team given the base amount
// the world server computed from its rating.
func (o *Orchestrator) ArenaPoints(ctx context.Context, teamID int64, base float64) (float64, error) {
	team, err := o.GetTeam(ctx, teamID)
	if err != nil {
		return 0, err
	}
	return o.ledger.ArenaPoints(team, base), nil
}

// ResetWeek clears weekly counters for the solo category.
func (o *Orchestrator) ResetWeek(ctx context.Context) error {
	return o.ledger.ResetWeek(ctx)
}

func (o *Orchestrator) soloTeam(ctx context.Context, memberID string) (*domain.Team, error) {
	team, err := o.store.GetByMember(ctx, memberID, domain.CategorySolo3v3)
	if errors.Is(err, domain.ErrTeamNotFound) {
		return nil, ErrNoTeam
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team of %s: %w", memberID, err)
	}
	return team, nil
}
