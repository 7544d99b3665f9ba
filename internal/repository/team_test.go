package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/constants"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/database"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/db"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepos(t *testing.T) (*TeamRepository, *RatingHistoryRepository) {
	t.Helper()

	sqlDB, err := database.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	queries := db.New(sqlDB)
	return NewTeamRepository(sqlDB, queries, zerolog.Nop()),
		NewRatingHistoryRepository(queries, zerolog.Nop())
}

func persistent(name, captain string, rating int) *domain.Team {
	return &domain.Team{
		Name:      name,
		Category:  domain.CategorySolo3v3,
		Kind:      domain.TeamPersistent,
		CaptainID: captain,
		Rating:    rating,
		Members: []domain.Member{{
			ID:               captain,
			PersonalRating:   rating,
			MatchmakerRating: 1500,
		}},
	}
}

func TestCreateAndGetTeam(t *testing.T) {
	repo, _ := newTestRepos(t)
	ctx := context.Background()

	team := persistent("Alpha", "p1", 1500)
	require.NoError(t, repo.Create(ctx, team))
	assert.Equal(t, int64(1), team.ID)

	got, err := repo.Get(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.Name)
	assert.Equal(t, domain.TeamPersistent, got.Kind)
	require.Len(t, got.Members, 1)
	assert.Equal(t, 1500, got.Members[0].MatchmakerRating)

	byMember, err := repo.GetByMember(ctx, "p1", domain.CategorySolo3v3)
	require.NoError(t, err)
	assert.Equal(t, team.ID, byMember.ID)

	byName, err := repo.GetByName(ctx, "Alpha")
	require.NoError(t, err)
	assert.Equal(t, team.ID, byName.ID)

	_, err = repo.Get(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrTeamNotFound)
}

func TestEphemeralTeamsUseReservedRange(t *testing.T) {
	repo, _ := newTestRepos(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, persistent("Alpha", "p1", 1500)))

	for i, want := range []int64{constants.EphemeralTeamIDBase, constants.EphemeralTeamIDBase + 1} {
		eph := &domain.Team{
			Name:      "Solo Team m1 - " + string(rune('1'+i)),
			Category:  domain.CategorySolo3v3,
			Kind:      domain.TeamEphemeral,
			MatchID:   "m1",
			CaptainID: "p1",
			Rating:    1500,
			Members:   []domain.Member{{ID: "p1", MatchmakerRating: 1500}},
		}
		require.NoError(t, repo.Create(ctx, eph))
		assert.Equal(t, want, eph.ID)
	}

	// Ephemeral membership never shadows the persistent team.
	team, err := repo.GetByMember(ctx, "p1", domain.CategorySolo3v3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), team.ID)

	byMatch, err := repo.ListByMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, byMatch, 2)

	next := persistent("Beta", "p2", 1500)
	require.NoError(t, repo.Create(ctx, next))
	assert.Equal(t, int64(2), next.ID)

	require.NoError(t, repo.Delete(ctx, constants.EphemeralTeamIDBase))
	_, err = repo.Get(ctx, constants.EphemeralTeamIDBase)
	assert.ErrorIs(t, err, domain.ErrTeamNotFound)
}

func TestDuplicateNameRejected(t *testing.T) {
	repo, _ := newTestRepos(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, persistent("Alpha", "p1", 0)))
	assert.Error(t, repo.Create(ctx, persistent("Alpha", "p2", 0)))
}

func TestSaveStatsWritesTeamMembersAndHistory(t *testing.T) {
	repo, history := newTestRepos(t)
	ctx := context.Background()

	team := persistent("Alpha", "p1", 100)
	require.NoError(t, repo.Create(ctx, team))

	team.Rating = 76
	team.Rank = 1
	team.SeasonGames = 1
	team.WeekGames = 1
	team.Members[0].PersonalRating = 76
	team.Members[0].MatchmakerRating = 1476

	event := domain.RatingEvent{
		EventID:               "e1",
		TeamID:                team.ID,
		MemberID:              "p1",
		Kind:                  domain.EventForfeit,
		Delta:                 -24,
		RatingAfter:           76,
		MatchmakerRatingAfter: 1476,
	}
	require.NoError(t, repo.SaveStats(ctx, team, []domain.RatingEvent{event}))

	got, err := repo.Get(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, 76, got.Rating)
	assert.Equal(t, 1, got.SeasonGames)
	assert.Equal(t, 1476, got.Members[0].MatchmakerRating)

	done, err := repo.HasEvent(ctx, "e1", "p1")
	require.NoError(t, err)
	assert.True(t, done)

	done, err = repo.HasEvent(ctx, "e1", "p2")
	require.NoError(t, err)
	assert.False(t, done)

	events, err := history.GetByMember(ctx, "p1", constants.HistoryLimit)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, -24, events[0].Delta)
	assert.NotEmpty(t, events[0].ID)

	// A replayed event is rejected and the whole save rolls back.
	team.Rating = 0
	assert.Error(t, repo.SaveStats(ctx, team, []domain.RatingEvent{event}))
	got, err = repo.Get(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, 76, got.Rating)
}

func TestListByCategoryAndResetWeek(t *testing.T) {
	repo, _ := newTestRepos(t)
	ctx := context.Background()

	for _, tc := range []struct {
		name   string
		rating int
	}{{"Low", 1200}, {"High", 1800}, {"Mid", 1500}} {
		team := persistent(tc.name, tc.name, tc.rating)
		team.WeekGames = 3
		team.Members[0].WeekGames = 3
		require.NoError(t, repo.Create(ctx, team))
	}

	teams, err := repo.ListByCategory(ctx, domain.CategorySolo3v3, domain.TeamPersistent, -1)
	require.NoError(t, err)
	require.Len(t, teams, 3)
	assert.Equal(t, "High", teams[0].Name)
	assert.Equal(t, "Mid", teams[1].Name)
	assert.Equal(t, "Low", teams[2].Name)

	top, err := repo.ListByCategory(ctx, domain.CategorySolo3v3, domain.TeamPersistent, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	require.NoError(t, repo.ResetWeek(ctx, domain.CategorySolo3v3))
	got, err := repo.GetByName(ctx, "Mid")
	require.NoError(t, err)
	assert.Zero(t, got.WeekGames)
	assert.Zero(t, got.Members[0].WeekGames)
}

func TestHistoryErrorsAreWrapped(t *testing.T) {
	sqlDB, err := database.Open(filepath.Join(t.TempDir(), "closed.db"), zerolog.Nop())
	require.NoError(t, err)
	history := NewRatingHistoryRepository(db.New(sqlDB), zerolog.Nop())
	require.NoError(t, sqlDB.Close())

	_, err = history.GetByMember(context.Background(), "p1", constants.HistoryLimit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get rating history for p1")
}
