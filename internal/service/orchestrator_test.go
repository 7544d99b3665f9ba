package service

import (
	"context"
	"errors"
	"testing"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/config"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/constants"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/queue"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/role"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queued(f *fixture) []*queue.Entry {
	var out []*queue.Entry
	for _, pool := range f.o.registry.Pools() {
		pool.Exclusive(func(b *queue.Buckets) {
			out = append(out, b.All()...)
		})
	}
	return out
}

func TestTickLaunchesRatedMatch(t *testing.T) {
	f := newFixture(t)
	ratings := map[string]int{"h1": 1200, "m1": 1500, "r1": 1800, "h2": 1000, "m2": 1000, "r2": 1300}
	for _, p := range roster {
		f.candidate(p.id, p.role, domain.SideA)
		f.team(p.id, ratings[p.id])
		f.join(true, p.id)
	}

	require.NoError(t, f.o.Tick(context.Background()))

	require.Len(t, f.host.tickets, 1)
	ticket := f.host.tickets[0]
	assert.True(t, ticket.Rated)
	assert.Equal(t, 80, ticket.Bracket)
	assert.ElementsMatch(t, []string{"h1", "m1", "r1"}, ticket.Sides[domain.SideA].Members)
	assert.ElementsMatch(t, []string{"h2", "m2", "r2"}, ticket.Sides[domain.SideB].Members)
	assert.Equal(t, 1500, ticket.Sides[domain.SideA].Rating)
	assert.Equal(t, 1100, ticket.Sides[domain.SideB].Rating)
	for _, side := range ticket.Sides {
		assert.GreaterOrEqual(t, side.TeamID, constants.EphemeralTeamIDBase)
	}

	m, err := f.o.Match(ticket.MatchID)
	require.NoError(t, err)
	assert.Equal(t, MatchWaiting, m.Status)
	assert.Equal(t, [domain.SideCount]int{1500, 1100}, m.Snapshot)
	assert.Equal(t, ticket.Sides[domain.SideA].TeamID, m.Teams[domain.SideA])

	assert.Empty(t, queued(f))
	assert.Equal(t, 2, f.store.countKind(domain.TeamEphemeral))

	// Ephemeral teams carry the member's numbers but never replace the
	// persistent lookup.
	assert.Equal(t, 1200, f.persistent("h1").Rating)
	eph, err := f.store.Get(context.Background(), m.Teams[domain.SideA])
	require.NoError(t, err)
	assert.Equal(t, m.ID, eph.MatchID)
	assert.Equal(t, 1800, eph.Member("r1").MatchmakerRating)

	_, err = f.o.JoinQueue(context.Background(), JoinRequest{Members: []string{"h1"}})
	assert.ErrorIs(t, err, ErrInMatch)
}

func TestTickRequeuesOnLaunchFailure(t *testing.T) {
	f := newFixture(t)
	f.host.startErr = errors.New("world server unavailable")
	for _, p := range roster {
		f.candidate(p.id, p.role, domain.SideA)
		f.team(p.id, 1500)
		f.join(true, p.id)
	}

	require.NoError(t, f.o.Tick(context.Background()))

	entries := queued(f)
	assert.Len(t, entries, 6)
	for _, e := range entries {
		assert.False(t, e.Invited, e.ID)
	}
	assert.Zero(t, f.store.countKind(domain.TeamEphemeral))
	_, inMatch := f.o.matches.matchOf("h1")
	assert.False(t, inMatch)

	f.host.startErr = nil
	require.NoError(t, f.o.Tick(context.Background()))
	assert.Len(t, f.host.tickets, 1)
	assert.Empty(t, queued(f))
}

func TestTickWaitsForFullLobby(t *testing.T) {
	f := newFixture(t)
	for _, p := range roster[:5] {
		f.candidate(p.id, p.role, domain.SideA)
		f.join(false, p.id)
	}

	require.NoError(t, f.o.Tick(context.Background()))

	assert.Empty(t, f.host.tickets)
	for _, e := range queued(f) {
		assert.False(t, e.Invited)
	}
}

func TestTickSkipsOfflineCandidates(t *testing.T) {
	f := newFixture(t)
	for _, p := range roster {
		f.candidate(p.id, p.role, domain.SideA)
		f.join(false, p.id)
	}
	delete(f.dir.cands, "r2")

	require.NoError(t, f.o.Tick(context.Background()))

	assert.Empty(t, f.host.tickets)
	assert.Len(t, queued(f), 6)
}

func TestTickTestingModeUnrated(t *testing.T) {
	f := newFixture(t, func(s *config.Solo) { s.ArenaTesting = true })
	f.candidate("a", role.Melee, domain.SideA)
	f.candidate("b", role.Melee, domain.SideB)
	f.join(false, "a")
	f.join(false, "b")

	require.NoError(t, f.o.Tick(context.Background()))

	require.Len(t, f.host.tickets, 1)
	ticket := f.host.tickets[0]
	assert.False(t, ticket.Rated)
	assert.Equal(t, []string{"a"}, ticket.Sides[domain.SideA].Members)
	assert.Equal(t, []string{"b"}, ticket.Sides[domain.SideB].Members)
	assert.Zero(t, ticket.Sides[domain.SideA].TeamID)
	assert.Zero(t, f.store.countKind(domain.TeamEphemeral))
}

func TestTickDisabled(t *testing.T) {
	f := newFixture(t, func(s *config.Solo) { s.ArenaTesting = true })
	f.candidate("a", role.Melee, domain.SideA)
	f.candidate("b", role.Melee, domain.SideB)
	f.join(false, "a")
	f.join(false, "b")
	f.o.cfg.Enable = false

	require.NoError(t, f.o.Tick(context.Background()))
	assert.Empty(t, f.host.tickets)
}

func TestTickStopsOnCancelledContext(t *testing.T) {
	f := newFixture(t, func(s *config.Solo) { s.ArenaTesting = true })
	f.candidate("a", role.Melee, domain.SideA)
	f.join(false, "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, f.o.Tick(ctx), context.Canceled)
}

func TestPurgeOrphanTeams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.team("keep", 1500)
	for _, name := range []string{"Solo Team old - 1", "Solo Team old - 2"} {
		require.NoError(t, f.store.Create(ctx, &domain.Team{
			Name:     name,
			Category: domain.CategorySolo3v3,
			Kind:     domain.TeamEphemeral,
			MatchID:  "old",
		}))
	}

	require.NoError(t, f.o.PurgeOrphanTeams(ctx))

	assert.Zero(t, f.store.countKind(domain.TeamEphemeral))
	assert.Equal(t, 1, f.store.countKind(domain.TeamPersistent))
}
