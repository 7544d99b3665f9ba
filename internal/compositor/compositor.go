// Package compositor assembles two role-balanced sides from a bracket's
// queue.
package compositor

import (
	"math/rand/v2"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/invariant"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/queue"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/role"
	"github.com/rs/zerolog"
)

type Config struct {
	MinPlayersPerTeam int
	StrictRoleTriad   bool
	Rated             bool
}

// Directory resolves queued member ids to live candidates. Lookups must not
// block; the caller resolves candidates before taking the pool lock.
type Directory interface {
	Candidate(id string) (*domain.Candidate, bool)
}

// Candidates is a Directory backed by a map.
type Candidates map[string]*domain.Candidate

func (c Candidates) Candidate(id string) (*domain.Candidate, bool) {
	cand, ok := c[id]
	return cand, ok
}

type Result struct {
	Complete bool
	Rosters  [domain.SideCount][]*queue.Entry
	Slates   [domain.SideCount]Slate
	Sweeps   int
	Relabels int
}

type Compositor interface {
	Compose(b *queue.Buckets, dir Directory, cfg Config) Result
}

type RoleCompositor struct {
	classifier role.Classifier
	guard      *invariant.Guard
	logger     zerolog.Logger

	// Coin picks side A when it returns true.
	Coin func() bool
}

func New(classifier role.Classifier, guard *invariant.Guard, logger zerolog.Logger) *RoleCompositor {
	return &RoleCompositor{
		classifier: classifier,
		guard:      guard,
		logger:     logger,
		Coin:       func() bool { return rand.IntN(2) == 0 },
	}
}

// Compose runs assignment sweeps until one finishes without relabeling an
// entry. The caller must hold the pool (b comes from queue.Pool.Exclusive).
//
// An entry relabeled during the chain stays pinned to its new side, so every
// entry moves at most once and the chain ends after at most len(entries)+1
// sweeps.
func (c *RoleCompositor) Compose(b *queue.Buckets, dir Directory, cfg Config) Result {
	if cfg.MinPlayersPerTeam <= 0 || cfg.MinPlayersPerTeam > TeamSize {
		cfg.MinPlayersPerTeam = TeamSize
	}

	var res Result
	pinned := make(map[string]domain.Side)
	for {
		res.Sweeps++
		if !c.sweep(b, dir, cfg, pinned, &res) {
			break
		}
		res.Relabels++
	}

	c.logger.Debug().
		Bool("rated", cfg.Rated).
		Bool("complete", res.Complete).
		Int("sweeps", res.Sweeps).
		Int("relabels", res.Relabels).
		Int("side_a", res.Slates[domain.SideA].Total()).
		Int("side_b", res.Slates[domain.SideB].Total()).
		Msg("compose finished")

	return res
}

// sweep makes one pass over both buckets. It returns true when it relabeled
// an entry and stopped early.
func (c *RoleCompositor) sweep(b *queue.Buckets, dir Directory, cfg Config, pinned map[string]domain.Side, res *Result) bool {
	var slates [domain.SideCount]Slate
	var pools [domain.SideCount]queue.SelectionPool
	strict := cfg.StrictRoleTriad
	size := cfg.MinPlayersPerTeam

	for _, bucket := range []domain.Side{domain.SideA, domain.SideB} {
		for _, e := range b.Bucket(cfg.Rated, bucket) {
			if e.Invited {
				continue
			}

			roles := c.roles(e, dir)
			if len(roles) == 0 {
				continue
			}

			var can [domain.SideCount]bool
			for side := range can {
				can[side] = slates[side].Total() < size && slates[side].CanAddAll(roles, strict)
			}
			if side, ok := pinned[e.ID]; ok {
				can[side.Other()] = false
			}

			var target domain.Side
			switch {
			case can[domain.SideA] && can[domain.SideB]:
				if c.Coin() {
					target = domain.SideA
				} else {
					target = domain.SideB
				}
			case can[domain.SideA]:
				target = domain.SideA
			case can[domain.SideB]:
				target = domain.SideB
			default:
				continue
			}

			if !pools[target].AddGroup(e, size) {
				continue
			}
			for _, r := range roles {
				slates[target].Add(r)
			}
			c.guard.Check(slates[target].Total() <= TeamSize, "side %s slate holds %d members", target, slates[target].Total())

			if e.Side != target {
				b.Relabel(e, target)
				pinned[e.ID] = target
				return true
			}
		}
	}

	res.Slates = slates
	for side := range pools {
		res.Rosters[side] = pools[side].Selected
	}
	res.Complete = slates[domain.SideA].Valid(strict, size) && slates[domain.SideB].Valid(strict, size)
	return false
}

// roles classifies every member of e that still resolves to a live
// candidate. Members that disconnected are skipped.
func (c *RoleCompositor) roles(e *queue.Entry, dir Directory) []role.Category {
	roles := make([]role.Category, 0, e.Size())
	for _, id := range e.Members {
		cand, ok := dir.Candidate(id)
		if !ok {
			continue
		}
		roles = append(roles, c.classifier.Classify(cand))
	}
	return roles
}
