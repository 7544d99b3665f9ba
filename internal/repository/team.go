package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/constants"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/db"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type TeamRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewTeamRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *TeamRepository {
	return &TeamRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

func (r *TeamRepository) Get(ctx context.Context, id int64) (*domain.Team, error) {
	row, err := r.queries.GetTeam(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team %d: %w", id, err)
	}
	return r.withMembers(ctx, r.queries, row)
}

func (r *TeamRepository) GetByName(ctx context.Context, name string) (*domain.Team, error) {
	row, err := r.queries.GetTeamByName(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team %q: %w", name, err)
	}
	return r.withMembers(ctx, r.queries, row)
}

func (r *TeamRepository) GetByMember(ctx context.Context, memberID string, category domain.Category) (*domain.Team, error) {
	row, err := r.queries.GetPersistentTeamByMember(ctx, db.GetPersistentTeamByMemberParams{
		MemberID: memberID,
		Category: int64(category),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team for member %s: %w", memberID, err)
	}
	return r.withMembers(ctx, r.queries, row)
}

// ListByCategory returns teams ordered by rating, highest first. A negative
// limit returns every team. Members are not loaded.
func (r *TeamRepository) ListByCategory(ctx context.Context, category domain.Category, kind domain.TeamKind, limit int) ([]domain.Team, error) {
	rows, err := r.queries.ListTeamsByCategory(ctx, db.ListTeamsByCategoryParams{
		Category: int64(category),
		Kind:     string(kind),
		Limit:    int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}

	result := make([]domain.Team, len(rows))
	for i, row := range rows {
		result[i] = toDomainTeam(row)
	}
	return result, nil
}

func (r *TeamRepository) ListByMatch(ctx context.Context, matchID string) ([]domain.Team, error) {
	rows, err := r.queries.ListTeamsByMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams for match %s: %w", matchID, err)
	}

	result := make([]domain.Team, 0, len(rows))
	for _, row := range rows {
		team, err := r.withMembers(ctx, r.queries, row)
		if err != nil {
			return nil, err
		}
		result = append(result, *team)
	}
	return result, nil
}

// Create inserts the team and its members. Ephemeral teams get the next id
// from the reserved range; persistent ids stay below it.
func (r *TeamRepository) Create(ctx context.Context, team *domain.Team) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	now := time.Now()
	if team.CreatedAt.IsZero() {
		team.CreatedAt = now
	}
	team.UpdatedAt = now

	var id sql.NullInt64
	switch team.Kind {
	case domain.TeamEphemeral:
		next, err := qtx.NextEphemeralTeamID(ctx, constants.EphemeralTeamIDBase)
		if err != nil {
			return fmt.Errorf("failed to allocate ephemeral team id: %w", err)
		}
		id = sql.NullInt64{Int64: next, Valid: true}
	case domain.TeamPersistent:
		last, err := qtx.MaxPersistentTeamID(ctx)
		if err != nil {
			return fmt.Errorf("failed to allocate team id: %w", err)
		}
		if last+1 >= constants.EphemeralTeamIDBase {
			return fmt.Errorf("persistent team id range exhausted")
		}
		id = sql.NullInt64{Int64: last + 1, Valid: true}
	default:
		return fmt.Errorf("unknown team kind %q", team.Kind)
	}

	newID, err := qtx.CreateTeam(ctx, db.CreateTeamParams{
		ID:          id,
		Name:        team.Name,
		Category:    int64(team.Category),
		Kind:        string(team.Kind),
		MatchID:     team.MatchID,
		CaptainID:   team.CaptainID,
		Rating:      int64(team.Rating),
		Rank:        int64(team.Rank),
		SeasonGames: int64(team.SeasonGames),
		SeasonWins:  int64(team.SeasonWins),
		WeekGames:   int64(team.WeekGames),
		WeekWins:    int64(team.WeekWins),
		CreatedAt:   team.CreatedAt,
		UpdatedAt:   team.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to create team %q: %w", team.Name, err)
	}
	team.ID = newID

	if err := upsertMembers(ctx, qtx, team); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit team %q: %w", team.Name, err)
	}

	r.logger.Debug().
		Int64("team_id", team.ID).
		Str("name", team.Name).
		Str("kind", string(team.Kind)).
		Int("members", len(team.Members)).
		Msg("team created")
	return nil
}

func (r *TeamRepository) Delete(ctx context.Context, id int64) error {
	if err := r.queries.DeleteTeam(ctx, id); err != nil {
		return fmt.Errorf("failed to delete team %d: %w", id, err)
	}
	r.logger.Debug().Int64("team_id", id).Msg("team deleted")
	return nil
}

// SaveStats persists team stats, every member row and the rating events in a
// single transaction.
func (r *TeamRepository) SaveStats(ctx context.Context, team *domain.Team, events []domain.RatingEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	if team.UpdatedAt.IsZero() {
		team.UpdatedAt = time.Now()
	}
	err = qtx.UpdateTeamStats(ctx, db.UpdateTeamStatsParams{
		Rating:      int64(team.Rating),
		Rank:        int64(team.Rank),
		SeasonGames: int64(team.SeasonGames),
		SeasonWins:  int64(team.SeasonWins),
		WeekGames:   int64(team.WeekGames),
		WeekWins:    int64(team.WeekWins),
		UpdatedAt:   team.UpdatedAt,
		ID:          team.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to update team %d: %w", team.ID, err)
	}

	if err := upsertMembers(ctx, qtx, team); err != nil {
		return err
	}
	if err := insertEvents(ctx, qtx, events); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *TeamRepository) HasEvent(ctx context.Context, eventID, memberID string) (bool, error) {
	return r.queries.HasRatingEvent(ctx, db.HasRatingEventParams{
		EventID:  eventID,
		MemberID: memberID,
	})
}

func (r *TeamRepository) ResetWeek(ctx context.Context, category domain.Category) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	if err := qtx.ResetWeekTeams(ctx, db.ResetWeekParams{UpdatedAt: time.Now(), Category: int64(category)}); err != nil {
		return fmt.Errorf("failed to reset team week stats: %w", err)
	}
	if err := qtx.ResetWeekMembers(ctx, int64(category)); err != nil {
		return fmt.Errorf("failed to reset member week stats: %w", err)
	}
	return tx.Commit()
}

func (r *TeamRepository) withMembers(ctx context.Context, q *db.Queries, row db.Team) (*domain.Team, error) {
	members, err := q.ListTeamMembers(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of team %d: %w", row.ID, err)
	}

	team := toDomainTeam(row)
	team.Members = make([]domain.Member, len(members))
	for i, m := range members {
		team.Members[i] = domain.Member{
			ID:                  m.MemberID,
			PersonalRating:      int(m.PersonalRating),
			SeasonGames:         int(m.SeasonGames),
			SeasonWins:          int(m.SeasonWins),
			WeekGames:           int(m.WeekGames),
			WeekWins:            int(m.WeekWins),
			MatchmakerRating:    int(m.MatchmakerRating),
			MaxMatchmakerRating: int(m.MaxMatchmakerRating),
		}
	}
	return &team, nil
}

func toDomainTeam(row db.Team) domain.Team {
	return domain.Team{
		ID:          row.ID,
		Name:        row.Name,
		Category:    domain.Category(row.Category),
		Kind:        domain.TeamKind(row.Kind),
		MatchID:     row.MatchID,
		CaptainID:   row.CaptainID,
		Rating:      int(row.Rating),
		Rank:        int(row.Rank),
		SeasonGames: int(row.SeasonGames),
		SeasonWins:  int(row.SeasonWins),
		WeekGames:   int(row.WeekGames),
		WeekWins:    int(row.WeekWins),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func upsertMembers(ctx context.Context, qtx *db.Queries, team *domain.Team) error {
	for _, m := range team.Members {
		err := qtx.UpsertTeamMember(ctx, db.UpsertTeamMemberParams{
			TeamID:              team.ID,
			MemberID:            m.ID,
			PersonalRating:      int64(m.PersonalRating),
			SeasonGames:         int64(m.SeasonGames),
			SeasonWins:          int64(m.SeasonWins),
			WeekGames:           int64(m.WeekGames),
			WeekWins:            int64(m.WeekWins),
			MatchmakerRating:    int64(m.MatchmakerRating),
			MaxMatchmakerRating: int64(m.MaxMatchmakerRating),
		})
		if err != nil {
			return fmt.Errorf("failed to upsert member %s of team %d: %w", m.ID, team.ID, err)
		}
	}
	return nil
}

func insertEvents(ctx context.Context, qtx *db.Queries, events []domain.RatingEvent) error {
	for _, e := range events {
		id := e.ID
		if id == "" {
			var err error
			id, err = gonanoid.New()
			if err != nil {
				return fmt.Errorf("failed to generate nanoid: %w", err)
			}
		}

		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		err := qtx.InsertRatingHistory(ctx, db.InsertRatingHistoryParams{
			ID:                    id,
			EventID:               e.EventID,
			TeamID:                e.TeamID,
			MemberID:              e.MemberID,
			Kind:                  string(e.Kind),
			Delta:                 int64(e.Delta),
			RatingAfter:           int64(e.RatingAfter),
			MatchmakerRatingAfter: int64(e.MatchmakerRatingAfter),
			CreatedAt:             createdAt,
		})
		if err != nil {
			return fmt.Errorf("failed to insert rating event %s/%s: %w", e.EventID, e.MemberID, err)
		}
	}
	return nil
}
