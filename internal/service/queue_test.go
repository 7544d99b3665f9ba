package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/config"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/queue"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/role"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinQueueRejects(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		req     JoinRequest
		wantErr error
	}{
		{
			name:    "disabled",
			setup:   func(f *fixture) { f.o.cfg.Enable = false },
			req:     JoinRequest{Members: []string{"a"}},
			wantErr: ErrQueueDisabled,
		},
		{
			name:    "empty group",
			req:     JoinRequest{},
			wantErr: ErrInvalidGroup,
		},
		{
			name:    "oversized group",
			req:     JoinRequest{Members: []string{"a", "b", "c", "d"}},
			wantErr: ErrInvalidGroup,
		},
		{
			name:    "repeated member",
			req:     JoinRequest{Members: []string{"a", "a"}},
			wantErr: ErrInvalidGroup,
		},
		{
			name:    "unknown candidate",
			req:     JoinRequest{Members: []string{"ghost"}},
			wantErr: ErrCandidateNotFound,
		},
		{
			name:    "level too low",
			setup:   func(f *fixture) { f.dir.cands["a"].Level = 70 },
			req:     JoinRequest{Members: []string{"a"}},
			wantErr: ErrLevelTooLow,
		},
		{
			name: "forbidden talents",
			setup: func(f *fixture) {
				f.dir.cands["a"].Talents = []domain.TalentInvestment{{Tree: 163, Rank: role.ForbiddenLimit}}
			},
			req:     JoinRequest{Members: []string{"a"}},
			wantErr: ErrForbiddenTalents,
		},
		{
			name:    "deserter",
			setup:   func(f *fixture) { f.o.deserters.Mark("a", f.clock.Add(time.Minute)) },
			req:     JoinRequest{Members: []string{"a"}},
			wantErr: ErrDeserter,
		},
		{
			name:    "rated without team",
			req:     JoinRequest{Members: []string{"a"}, Rated: true},
			wantErr: ErrNoTeam,
		},
		{
			name:    "rated group member without team",
			setup:   func(f *fixture) { f.team("a", 1500) },
			req:     JoinRequest{Members: []string{"a", "b"}, Rated: true},
			wantErr: ErrNoTeam,
		},
		{
			name:    "already queued",
			setup:   func(f *fixture) { f.join(false, "b") },
			req:     JoinRequest{Members: []string{"a", "b"}},
			wantErr: ErrAlreadyQueued,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.candidate("a", role.Melee, domain.SideA)
			f.candidate("b", role.Healer, domain.SideA)
			if tt.setup != nil {
				tt.setup(f)
			}

			_, err := f.o.JoinQueue(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestJoinQueueGroupTakesLeaderSide(t *testing.T) {
	f := newFixture(t)
	f.candidate("lead", role.Healer, domain.SideB)
	f.candidate("mate", role.Melee, domain.SideA)

	entry, err := f.o.JoinQueue(context.Background(), JoinRequest{Members: []string{"lead", "mate"}})
	require.NoError(t, err)

	assert.Equal(t, domain.SideB, entry.Side)
	assert.Equal(t, []string{"lead", "mate"}, entry.Members)
	assert.False(t, entry.Rated)

	pool, found := f.o.registry.FindMember("mate")
	require.NotNil(t, found)
	assert.Equal(t, 80, pool.Bracket())
}

func TestJoinQueueRatedCarriesLeaderTeam(t *testing.T) {
	f := newFixture(t)
	f.candidate("a", role.Melee, domain.SideA)
	teamID := f.team("a", 1720)

	entry, err := f.o.JoinQueue(context.Background(), JoinRequest{Members: []string{"a"}, Rated: true, Bracket: 70})
	require.NoError(t, err)

	assert.Equal(t, teamID, entry.TeamID)
	assert.Equal(t, 1720, entry.Rating)
	pool, _ := f.o.registry.FindMember("a")
	assert.Equal(t, 70, pool.Bracket())
}

func TestJoinQueueOneBracketPerMember(t *testing.T) {
	f := newFixture(t)
	f.candidate("m1", role.Melee, domain.SideA)

	brackets := []int{70, 80}
	errs := make([]error, len(brackets))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, bracket := range brackets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = f.o.JoinQueue(context.Background(), JoinRequest{Members: []string{"m1"}, Bracket: bracket})
		}()
	}
	close(start)
	wg.Wait()

	var joined, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			joined++
		case errors.Is(err, ErrAlreadyQueued):
			rejected++
		}
	}
	assert.Equal(t, 1, joined)
	assert.Equal(t, 1, rejected)
	assert.Len(t, queued(f), 1)
}

func TestLeaveQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.candidate("a", role.Melee, domain.SideA)
	f.candidate("b", role.Ranged, domain.SideA)
	f.join(false, "a", "b")

	require.NoError(t, f.o.LeaveQueue(ctx, "b"))

	pool, entry := f.o.registry.FindMember("a")
	assert.Nil(t, entry)
	assert.Nil(t, pool)
	assert.ErrorIs(t, f.o.LeaveQueue(ctx, "a"), ErrNotQueued)
}

func TestLeaveQueueWithPendingInvite(t *testing.T) {
	f := newFixture(t)
	f.candidate("a", role.Melee, domain.SideA)
	f.join(false, "a")

	pool, _ := f.o.registry.FindMember("a")
	pool.Exclusive(func(b *queue.Buckets) {
		b.FindMember("a").Invited = true
	})

	assert.ErrorIs(t, f.o.LeaveQueue(context.Background(), "a"), ErrInvitePending)
	_, entry := f.o.registry.FindMember("a")
	assert.NotNil(t, entry)
}

func TestQueueDepthIsCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.candidate("h", role.Healer, domain.SideA)
	f.candidate("m", role.Melee, domain.SideB)
	f.candidate("r", role.Ranged, domain.SideA)
	f.join(false, "h")
	f.join(false, "m")

	depth, err := f.o.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, depth.Total)
	assert.Equal(t, map[int]int{80: 2}, depth.Brackets)
	assert.Equal(t, map[string]int{"melee": 1, "ranged": 0, "healer": 1}, depth.ByRole)

	f.join(false, "r")
	depth, err = f.o.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, depth.Total)

	f.clock = f.clock.Add(2 * time.Second)
	depth, err = f.o.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, depth.Total)
	assert.Equal(t, 1, depth.ByRole["ranged"])
}

func TestQueueDepthWithoutTalentFilter(t *testing.T) {
	f := newFixture(t, func(s *config.Solo) { s.FilterTalents = false })
	f.candidate("h", role.Healer, domain.SideA)
	f.join(false, "h")
	calls := f.dir.calls

	depth, err := f.o.QueueDepth(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, depth.Total)
	assert.Nil(t, depth.ByRole)
	assert.Equal(t, calls, f.dir.calls)
}
