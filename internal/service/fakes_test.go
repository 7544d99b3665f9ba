package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/api"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/compositor"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/config"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/constants"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/invariant"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/ledger"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/role"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var trees = map[role.Category]int{
	role.Melee:  161,
	role.Ranged: 41,
	role.Healer: 202,
}

type fakeDirectory struct {
	mu    sync.Mutex
	cands map[string]*domain.Candidate
	calls int
}

func (d *fakeDirectory) FindCandidate(_ context.Context, id string) (*domain.Candidate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	c, ok := d.cands[id]
	if !ok {
		return nil, api.ErrCandidateNotFound
	}
	cp := *c
	return &cp, nil
}

type fakeHost struct {
	mu       sync.Mutex
	tickets  []domain.MatchTicket
	ended    []string
	startErr error
}

func (h *fakeHost) StartMatch(_ context.Context, ticket domain.MatchTicket) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.startErr != nil {
		return h.startErr
	}
	h.tickets = append(h.tickets, ticket)
	return nil
}

func (h *fakeHost) EndMatchUnrated(_ context.Context, matchID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ended = append(h.ended, matchID)
	return nil
}

// memStore keeps teams and rating events in memory. It follows the sqlite
// repository: ephemeral ids come from the reserved range and names are
// unique.
type memStore struct {
	mu        sync.Mutex
	teams     map[int64]domain.Team
	events    []domain.RatingEvent
	nextID    int64
	nextMatch int64

	// saveErr fails SaveStats for teams captained by the key.
	saveErr map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		teams:     make(map[int64]domain.Team),
		nextID:    1,
		nextMatch: constants.EphemeralTeamIDBase,
	}
}

func cloneTeam(t domain.Team) domain.Team {
	t.Members = append([]domain.Member(nil), t.Members...)
	return t
}

func (s *memStore) Get(_ context.Context, id int64) (*domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, domain.ErrTeamNotFound
	}
	c := cloneTeam(t)
	return &c, nil
}

func (s *memStore) GetByName(_ context.Context, name string) (*domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.teams {
		if t.Name == name {
			c := cloneTeam(t)
			return &c, nil
		}
	}
	return nil, domain.ErrTeamNotFound
}

func (s *memStore) GetByMember(_ context.Context, memberID string, category domain.Category) (*domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.teams {
		if t.Category != category || t.Kind != domain.TeamPersistent {
			continue
		}
		if t.Member(memberID) != nil {
			c := cloneTeam(t)
			return &c, nil
		}
	}
	return nil, domain.ErrTeamNotFound
}

func (s *memStore) ListByCategory(_ context.Context, category domain.Category, kind domain.TeamKind, limit int) ([]domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Team
	for _, t := range s.teams {
		if t.Category == category && t.Kind == kind {
			out = append(out, cloneTeam(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ID < out[j].ID
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ListByMatch(_ context.Context, matchID string) ([]domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Team
	for _, t := range s.teams {
		if t.MatchID == matchID {
			out = append(out, cloneTeam(t))
		}
	}
	return out, nil
}

func (s *memStore) Create(_ context.Context, team *domain.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.teams {
		if t.Name == team.Name {
			return fmt.Errorf("team name %q taken", team.Name)
		}
	}
	if team.IsEphemeral() {
		team.ID = s.nextMatch
		s.nextMatch++
	} else {
		team.ID = s.nextID
		s.nextID++
	}
	s.teams[team.ID] = cloneTeam(*team)
	return nil
}

func (s *memStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.teams, id)
	return nil
}

func (s *memStore) SaveStats(_ context.Context, team *domain.Team, events []domain.RatingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveErr[team.CaptainID]; err != nil {
		return err
	}
	s.teams[team.ID] = cloneTeam(*team)
	s.events = append(s.events, events...)
	return nil
}

func (s *memStore) HasEvent(_ context.Context, eventID, memberID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.EventID == eventID && e.MemberID == memberID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ResetWeek(_ context.Context, category domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.teams {
		if t.Category == category && t.Kind == domain.TeamPersistent {
			t.WeekGames, t.WeekWins = 0, 0
			s.teams[id] = t
		}
	}
	return nil
}

func (s *memStore) failSave(captainID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.saveErr, captainID)
		return
	}
	if s.saveErr == nil {
		s.saveErr = make(map[string]error)
	}
	s.saveErr[captainID] = err
}

func (s *memStore) countKind(kind domain.TeamKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.teams {
		if t.Kind == kind {
			n++
		}
	}
	return n
}

// historyView serves rating history out of the store's event log, newest
// first.
type historyView struct {
	store *memStore
}

func (h historyView) GetByMember(_ context.Context, memberID string, limit int) ([]domain.RatingEvent, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	var out []domain.RatingEvent
	for i := len(h.store.events) - 1; i >= 0 && len(out) < limit; i-- {
		if h.store.events[i].MemberID == memberID {
			out = append(out, h.store.events[i])
		}
	}
	return out, nil
}

type fixture struct {
	t     *testing.T
	o     *Orchestrator
	dir   *fakeDirectory
	host  *fakeHost
	store *memStore
	clock time.Time
}

func testSolo() config.Solo {
	return config.Solo{
		Enable:                true,
		MinLevel:              80,
		PenaltyDuringMatch:    24,
		PenaltyBeforeStart:    50,
		StrictRoleTriad:       true,
		ArenaPointsMultiplier: 0.88,
		DeserterOnAFK:         true,
		DeserterOnLeave:       true,
		BlockForbiddenTalents: true,
		FilterTalents:         true,
		TickInterval:          time.Second,
		DeserterDuration:      30 * time.Minute,
	}
}

func newFixture(t *testing.T, opts ...func(*config.Solo)) *fixture {
	cfg := testSolo()
	for _, opt := range opts {
		opt(&cfg)
	}

	guard := invariant.New(true, zerolog.Nop())
	classifier := role.NewClassifier(role.DefaultTable())
	comp := compositor.New(classifier, guard, zerolog.Nop())
	comp.Coin = func() bool { return true }

	store := newMemStore()
	led := ledger.New(store, ledger.Config{
		Category:              domain.CategorySolo3v3,
		PenaltyDuringMatch:    cfg.PenaltyDuringMatch,
		PenaltyBeforeStart:    cfg.PenaltyBeforeStart,
		ArenaPointsMultiplier: cfg.ArenaPointsMultiplier,
	}, guard, zerolog.Nop())

	f := &fixture{
		t:     t,
		dir:   &fakeDirectory{cands: make(map[string]*domain.Candidate)},
		host:  &fakeHost{},
		store: store,
		clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.o = NewOrchestrator(Deps{
		Config:     cfg,
		Compositor: comp,
		Talents:    classifier,
		Directory:  f.dir,
		Host:       f.host,
		Store:      store,
		History:    historyView{store: store},
		Ledger:     led,
	}, zerolog.Nop())

	var ids atomic.Int64
	f.o.now = func() time.Time { return f.clock }
	f.o.newID = func() (string, error) {
		return fmt.Sprintf("id%d", ids.Add(1)), nil
	}
	return f
}

func (f *fixture) candidate(id string, r role.Category, side domain.Side) {
	f.dir.mu.Lock()
	defer f.dir.mu.Unlock()
	f.dir.cands[id] = &domain.Candidate{
		ID:       id,
		Name:     id,
		Level:    80,
		HomeSide: side,
		Talents:  []domain.TalentInvestment{{Tree: trees[r], Rank: 5}},
	}
}

// team gives id a persistent solo team with the given rating and returns the
// team id.
func (f *fixture) team(id string, rating int) int64 {
	team := &domain.Team{
		Name:      "team-" + id,
		Category:  domain.CategorySolo3v3,
		Kind:      domain.TeamPersistent,
		CaptainID: id,
		Rating:    rating,
		Members: []domain.Member{{
			ID:                  id,
			PersonalRating:      rating,
			MatchmakerRating:    rating,
			MaxMatchmakerRating: rating,
		}},
	}
	require.NoError(f.t, f.store.Create(context.Background(), team))
	return team.ID
}

func (f *fixture) persistent(id string) *domain.Team {
	team, err := f.store.GetByMember(context.Background(), id, domain.CategorySolo3v3)
	require.NoError(f.t, err)
	return team
}

func (f *fixture) join(rated bool, ids ...string) {
	_, err := f.o.JoinQueue(context.Background(), JoinRequest{Members: ids, Rated: rated})
	require.NoError(f.t, err)
}

var roster = []struct {
	id   string
	role role.Category
}{
	{"h1", role.Healer},
	{"m1", role.Melee},
	{"r1", role.Ranged},
	{"h2", role.Healer},
	{"m2", role.Melee},
	{"r2", role.Ranged},
}

// launchRated queues a full strict-triad lobby, every member rated 1500,
// and ticks once.
func (f *fixture) launchRated() Match {
	for _, p := range roster {
		f.candidate(p.id, p.role, domain.SideA)
		f.team(p.id, 1500)
		f.join(true, p.id)
	}
	require.NoError(f.t, f.o.Tick(context.Background()))
	require.Len(f.t, f.host.tickets, 1)

	m, err := f.o.Match(f.host.tickets[0].MatchID)
	require.NoError(f.t, err)
	return m
}
