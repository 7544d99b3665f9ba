package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/api"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/compositor"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/constants"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/queue"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/role"
)

// JoinRequest queues one candidate or a small group that must play on the
// same side. The first member leads the group.
type JoinRequest struct {
	Members []string
	Bracket int
	Rated   bool
}

func (o *Orchestrator) JoinQueue(ctx context.Context, req JoinRequest) (*queue.Entry, error) {
	if !o.cfg.Enable {
		return nil, ErrQueueDisabled
	}
	if len(req.Members) == 0 || len(req.Members) > compositor.TeamSize {
		return nil, ErrInvalidGroup
	}
	seen := make(map[string]bool, len(req.Members))
	for _, id := range req.Members {
		if id == "" || seen[id] {
			return nil, ErrInvalidGroup
		}
		seen[id] = true
	}
	if req.Bracket == 0 {
		req.Bracket = constants.DefaultBracket
	}

	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	var leader *domain.Candidate
	for _, id := range req.Members {
		cand, err := o.admit(ctx, id)
		if err != nil {
			return nil, err
		}
		if leader == nil {
			leader = cand
		}
	}

	entry := &queue.Entry{
		Side:     leader.HomeSide,
		Rated:    req.Rated,
		Members:  append([]string(nil), req.Members...),
		JoinedAt: o.now(),
	}

	if req.Rated {
		// Groups queue with the leader's team numbers.
		team, err := o.soloTeam(ctx, leader.ID)
		if err != nil {
			return nil, err
		}
		entry.TeamID = team.ID
		entry.Rating = team.Rating
		entry.MatchmakerRating = team.Rating
		for _, id := range req.Members[1:] {
			if _, err := o.soloTeam(ctx, id); err != nil {
				return nil, err
			}
		}
	}

	id, err := o.newID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate entry id: %w", err)
	}
	entry.ID = id

	o.joinMu.Lock()
	for _, m := range entry.Members {
		if _, e := o.registry.FindMember(m); e != nil {
			o.joinMu.Unlock()
			return nil, ErrAlreadyQueued
		}
	}
	o.registry.Pool(req.Bracket).Exclusive(func(b *queue.Buckets) {
		b.Add(entry)
	})
	o.joinMu.Unlock()

	o.logger.Info().
		Str("entry_id", entry.ID).
		Strs("members", entry.Members).
		Int("bracket", req.Bracket).
		Bool("rated", req.Rated).
		Str("side", entry.Side.String()).
		Msg("joined queue")

	out := *entry
	return &out, nil
}

// admit checks that a single candidate may queue. For rated queues a missing
// persistent team is reported by JoinQueue afterwards.
func (o *Orchestrator) admit(ctx context.Context, id string) (*domain.Candidate, error) {
	if _, e := o.registry.FindMember(id); e != nil {
		return nil, ErrAlreadyQueued
	}
	if _, ok := o.matches.matchOf(id); ok {
		return nil, ErrInMatch
	}
	if (o.cfg.DeserterOnAFK || o.cfg.DeserterOnLeave) && o.deserters.IsDeserter(id, o.now()) {
		return nil, ErrDeserter
	}

	cand, err := o.directory.FindCandidate(ctx, id)
	if errors.Is(err, api.ErrCandidateNotFound) {
		return nil, ErrCandidateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up candidate %s: %w", id, err)
	}
	if cand.Level < o.cfg.MinLevel {
		return nil, ErrLevelTooLow
	}
	if o.cfg.BlockForbiddenTalents && o.talents.HasForbiddenInvestment(cand) {
		return nil, ErrForbiddenTalents
	}
	return cand, nil
}

// LeaveQueue removes the entry holding memberID. The whole group leaves with
// it.
func (o *Orchestrator) LeaveQueue(ctx context.Context, memberID string) error {
	pool, entry := o.registry.FindMember(memberID)
	if entry == nil {
		return ErrNotQueued
	}

	var removed *queue.Entry
	var invited bool
	pool.Exclusive(func(b *queue.Buckets) {
		e := b.FindMember(memberID)
		if e == nil {
			return
		}
		if e.Invited {
			invited = true
			return
		}
		removed = b.Remove(e.ID)
	})
	if invited {
		return ErrInvitePending
	}
	if removed == nil {
		return ErrNotQueued
	}

	o.logger.Info().Str("entry_id", removed.ID).Str("member_id", memberID).Int("bracket", pool.Bracket()).Msg("left queue")
	return nil
}

type QueueDepth struct {
	Total    int            `json:"total"`
	ByRole   map[string]int `json:"by_role,omitempty"`
	Brackets map[int]int    `json:"brackets"`
}

// QueueDepth counts waiting candidates. The result is cached briefly and
// concurrent callers share one computation.
func (o *Orchestrator) QueueDepth(ctx context.Context) (QueueDepth, error) {
	o.depthMu.Lock()
	if !o.depthAt.IsZero() && o.now().Sub(o.depthAt) < constants.QueueDepthTTL {
		d := o.depth
		o.depthMu.Unlock()
		return d, nil
	}
	o.depthMu.Unlock()

	v, err, _ := o.depthGroup.Do("depth", func() (any, error) {
		d, err := o.countQueue(ctx)
		if err != nil {
			return QueueDepth{}, err
		}
		o.depthMu.Lock()
		o.depth = d
		o.depthAt = o.now()
		o.depthMu.Unlock()
		return d, nil
	})
	if err != nil {
		return QueueDepth{}, err
	}
	return v.(QueueDepth), nil
}

func (o *Orchestrator) countQueue(ctx context.Context) (QueueDepth, error) {
	d := QueueDepth{Brackets: make(map[int]int)}
	var ids []string
	for _, pool := range o.registry.Pools() {
		pool.Exclusive(func(b *queue.Buckets) {
			for _, e := range b.All() {
				if e.Invited {
					continue
				}
				ids = append(ids, e.Members...)
				d.Brackets[pool.Bracket()] += e.Size()
			}
		})
	}
	d.Total = len(ids)

	if !o.cfg.FilterTalents {
		return d, nil
	}

	cands, err := o.resolve(ctx, ids)
	if err != nil {
		return QueueDepth{}, err
	}
	d.ByRole = map[string]int{
		role.Melee.String():  0,
		role.Ranged.String(): 0,
		role.Healer.String(): 0,
	}
	for _, c := range cands {
		d.ByRole[o.talents.Classify(c).String()]++
	}
	return d, nil
}
