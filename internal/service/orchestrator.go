// Package service runs the solo 3v3 queue: it composes matches on every
// scheduler tick, tracks their lifecycle and forwards outcomes to the rating
// ledger.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/api"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/compositor"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/config"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/constants"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/queue"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const lookupConcurrency = 8

type Orchestrator struct {
	cfg        config.Solo
	registry   *queue.Registry
	compositor compositor.Compositor
	talents    TalentInspector
	directory  CandidateDirectory
	host       MatchHost
	store      TeamStore
	history    HistoryStore
	ledger     RatingLedger
	deserters  *DeserterTracker
	matches    *matchBook
	logger     zerolog.Logger

	// joinMu makes the cross-bracket duplicate check and the insert atomic.
	joinMu sync.Mutex

	depthGroup singleflight.Group
	depthMu    sync.Mutex
	depth      QueueDepth
	depthAt    time.Time

	now   func() time.Time
	newID func() (string, error)
}

type Deps struct {
	Config     config.Solo
	Registry   *queue.Registry
	Compositor compositor.Compositor
	Talents    TalentInspector
	Directory  CandidateDirectory
	Host       MatchHost
	Store      TeamStore
	History    HistoryStore
	Ledger     RatingLedger
	Deserters  *DeserterTracker
}

func NewOrchestrator(d Deps, logger zerolog.Logger) *Orchestrator {
	if d.Registry == nil {
		d.Registry = queue.NewRegistry()
	}
	if d.Deserters == nil {
		d.Deserters = NewDeserterTracker()
	}
	return &Orchestrator{
		cfg:        d.Config,
		registry:   d.Registry,
		compositor: d.Compositor,
		talents:    d.Talents,
		directory:  d.Directory,
		host:       d.Host,
		store:      d.Store,
		history:    d.History,
		ledger:     d.Ledger,
		deserters:  d.Deserters,
		matches:    newMatchBook(),
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		now:        time.Now,
		newID:      func() (string, error) { return gonanoid.New() },
	}
}

// Run ticks the queue until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	tick := time.NewTicker(o.cfg.TickInterval)
	defer tick.Stop()
	sweep := time.NewTicker(constants.DeserterSweep)
	defer sweep.Stop()

	purgeCtx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	if err := o.PurgeOrphanTeams(purgeCtx); err != nil {
		o.logger.Error().Err(err).Msg("failed to purge orphan match teams")
	}
	cancel()

	o.logger.Info().Dur("interval", o.cfg.TickInterval).Msg("queue scheduler started")
	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("queue scheduler stopped")
			return
		case <-tick.C:
			if err := o.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error().Err(err).Msg("queue tick failed")
			}
		case <-sweep.C:
			if n := o.deserters.Sweep(o.now()); n > 0 {
				o.logger.Debug().Int("expired", n).Msg("deserter marks expired")
			}
		}
	}
}

// Tick runs one queue update for every bracket. Brackets are independent and
// run concurrently; within a bracket the unrated pair is matched before the
// rated pair.
func (o *Orchestrator) Tick(ctx context.Context) error {
	if !o.cfg.Enable {
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, pool := range o.registry.Pools() {
		g.Go(func() error {
			for _, rated := range []bool{false, true} {
				if err := o.matchPool(gCtx, pool, rated); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// matchPool composes and launches at most one match from one bucket pair.
// Only context errors are returned; launch failures are logged and the
// entries go back to waiting.
func (o *Orchestrator) matchPool(ctx context.Context, pool *queue.Pool, rated bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	size := o.cfg.MinPlayersPerTeam()
	ids := pendingMembers(pool, rated)
	if len(ids) < 2*size {
		return nil
	}

	cands, err := o.resolve(ctx, ids)
	if err != nil {
		return err
	}

	cfg := compositor.Config{
		MinPlayersPerTeam: size,
		StrictRoleTriad:   o.cfg.StrictRoleTriad,
		Rated:             rated,
	}

	var res compositor.Result
	pool.Exclusive(func(b *queue.Buckets) {
		res = o.compositor.Compose(b, cands, cfg)
		if !res.Complete {
			return
		}
		for _, roster := range res.Rosters {
			for _, e := range roster {
				e.Invited = true
			}
		}
	})
	if !res.Complete {
		return nil
	}

	log := o.logger.With().Int("bracket", pool.Bracket()).Bool("rated", rated).Logger()

	m, err := o.launch(ctx, pool.Bracket(), rated, res, cands)
	if err != nil {
		log.Error().Err(err).Msg("failed to launch match, entries requeued")
		pool.Exclusive(func(b *queue.Buckets) {
			for _, roster := range res.Rosters {
				for _, e := range roster {
					e.Invited = false
				}
			}
		})
		return nil
	}

	pool.Exclusive(func(b *queue.Buckets) {
		for _, roster := range res.Rosters {
			for _, e := range roster {
				b.Remove(e.ID)
			}
		}
	})

	log.Info().
		Str("match_id", m.ID).
		Strs("side_a", m.Rosters[domain.SideA]).
		Strs("side_b", m.Rosters[domain.SideB]).
		Int("sweeps", res.Sweeps).
		Msg("match launched")
	return nil
}

func pendingMembers(pool *queue.Pool, rated bool) []string {
	var ids []string
	pool.Exclusive(func(b *queue.Buckets) {
		for _, side := range []domain.Side{domain.SideA, domain.SideB} {
			for _, e := range b.Bucket(rated, side) {
				if !e.Invited {
					ids = append(ids, e.Members...)
				}
			}
		}
	})
	return ids
}

// resolve looks every id up in the character directory. Offline or unknown
// characters are left out of the result.
func (o *Orchestrator) resolve(ctx context.Context, ids []string) (compositor.Candidates, error) {
	var mu sync.Mutex
	cands := make(compositor.Candidates, len(ids))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			c, err := o.directory.FindCandidate(gCtx, id)
			if errors.Is(err, api.ErrCandidateNotFound) {
				return nil
			}
			if err != nil {
				if ctxErr := gCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				o.logger.Warn().Err(err).Str("candidate_id", id).Msg("candidate lookup failed")
				return nil
			}
			mu.Lock()
			cands[id] = c
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cands, nil
}

// launch creates the per-match teams for rated matches and asks the host to
// open the arena. Everything created here is undone on failure.
func (o *Orchestrator) launch(ctx context.Context, bracket int, rated bool, res compositor.Result, cands compositor.Candidates) (*Match, error) {
	matchID, err := o.newID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate match id: %w", err)
	}

	m := &Match{
		ID:        matchID,
		Bracket:   bracket,
		Rated:     rated,
		Status:    MatchWaiting,
		CreatedAt: o.now(),
	}
	for side, roster := range res.Rosters {
		for _, e := range roster {
			for _, id := range e.Members {
				if _, ok := cands[id]; ok {
					m.Rosters[side] = append(m.Rosters[side], id)
				}
			}
		}
	}

	ticket := domain.MatchTicket{MatchID: matchID, Bracket: bracket, Rated: rated}
	if rated {
		teams, err := o.createMatchTeams(ctx, m)
		if err != nil {
			return nil, err
		}
		for side, t := range teams {
			m.Teams[side] = t.ID
			m.Snapshot[side] = t.Rating
			ticket.Sides[side] = domain.TicketSide{TeamID: t.ID, Name: t.Name, Rating: t.Rating}
		}
	}
	for side := range m.Rosters {
		ticket.Sides[side].Members = m.Rosters[side]
	}

	if err := o.host.StartMatch(ctx, ticket); err != nil {
		o.deleteMatchTeams(context.WithoutCancel(ctx), m)
		return nil, err
	}

	o.matches.add(m)
	return m, nil
}

// createMatchTeams builds one ephemeral team per side. Its rating is the
// average rating of the members' persistent teams; members carry over their
// personal and matchmaking ratings.
func (o *Orchestrator) createMatchTeams(ctx context.Context, m *Match) ([domain.SideCount]*domain.Team, error) {
	var teams [domain.SideCount]*domain.Team
	for side, roster := range m.Rosters {
		team := &domain.Team{
			Name:     fmt.Sprintf("Solo Team %s - %d", m.ID, side+1),
			Category: domain.CategorySolo3v3,
			Kind:     domain.TeamEphemeral,
			MatchID:  m.ID,
		}
		total := 0
		for _, id := range roster {
			if team.CaptainID == "" {
				team.CaptainID = id
			}
			member := domain.Member{ID: id, MatchmakerRating: constants.StartMatchmakerRating}
			persistent, err := o.store.GetByMember(ctx, id, domain.CategorySolo3v3)
			switch {
			case err == nil:
				total += persistent.Rating
				if pm := persistent.Member(id); pm != nil {
					member.PersonalRating = pm.PersonalRating
					member.MatchmakerRating = pm.MatchmakerRating
					member.MaxMatchmakerRating = pm.MaxMatchmakerRating
				}
			case errors.Is(err, domain.ErrTeamNotFound):
				o.logger.Warn().Str("match_id", m.ID).Str("member_id", id).Msg("rated member without persistent team")
			default:
				o.deleteMatchTeams(context.WithoutCancel(ctx), m)
				return teams, fmt.Errorf("failed to load team of %s: %w", id, err)
			}
			team.Members = append(team.Members, member)
		}
		if len(roster) > 0 {
			team.Rating = total / len(roster)
		}

		if err := o.store.Create(ctx, team); err != nil {
			o.deleteMatchTeams(context.WithoutCancel(ctx), m)
			return teams, fmt.Errorf("failed to create match team: %w", err)
		}
		m.Teams[side] = team.ID
		teams[side] = team
	}
	return teams, nil
}

func (o *Orchestrator) deleteMatchTeams(ctx context.Context, m *Match) {
	for side, id := range m.Teams {
		if id == 0 {
			continue
		}
		if err := o.store.Delete(ctx, id); err != nil {
			o.logger.Error().Err(err).Str("match_id", m.ID).Int64("team_id", id).Msg("failed to delete match team")
			continue
		}
		m.Teams[side] = 0
	}
}

// purgeMatchTeams deletes every stored team of the match, including any the
// in-memory record lost track of.
func (o *Orchestrator) purgeMatchTeams(ctx context.Context, matchID string) {
	teams, err := o.store.ListByMatch(ctx, matchID)
	if err != nil {
		o.logger.Error().Err(err).Str("match_id", matchID).Msg("failed to list match teams")
		return
	}
	for _, t := range teams {
		if err := o.store.Delete(ctx, t.ID); err != nil {
			o.logger.Error().Err(err).Str("match_id", matchID).Int64("team_id", t.ID).Msg("failed to delete match team")
		}
	}
}

// PurgeOrphanTeams removes match teams left behind by a previous process.
// Matches live only in memory, so no stored match team survives a restart.
func (o *Orchestrator) PurgeOrphanTeams(ctx context.Context) error {
	teams, err := o.store.ListByCategory(ctx, domain.CategorySolo3v3, domain.TeamEphemeral, -1)
	if err != nil {
		return fmt.Errorf("failed to list match teams: %w", err)
	}
	var errs error
	for _, t := range teams {
		errs = multierr.Append(errs, o.store.Delete(ctx, t.ID))
	}
	if len(teams) > 0 {
		o.logger.Info().Int("count", len(teams)).Msg("purged orphan match teams")
	}
	return errs
}
