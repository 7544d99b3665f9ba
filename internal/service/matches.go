package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/constants"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/ledger"
)

type MatchStatus string

const (
	MatchWaiting    MatchStatus = "waiting"
	MatchInProgress MatchStatus = "in_progress"
	MatchEnded      MatchStatus = "ended"
)

// Match is a launched arena and the bookkeeping needed to rate it.
type Match struct {
	ID        string
	Bracket   int
	Rated     bool
	Status    MatchStatus
	Teams     [domain.SideCount]int64
	Snapshot  [domain.SideCount]int
	Rosters   [domain.SideCount][]string
	Entered   map[string]bool
	Left      map[string]bool
	Exited    map[string]bool
	CreatedAt time.Time

	// Scored is set once the result reached the ledger for every member.
	Scored bool
}

func (m *Match) SideOf(memberID string) (domain.Side, bool) {
	for side, roster := range m.Rosters {
		for _, id := range roster {
			if id == memberID {
				return domain.Side(side), true
			}
		}
	}
	return domain.SideA, false
}

func (m *Match) Members() []string {
	out := make([]string, 0, len(m.Rosters[domain.SideA])+len(m.Rosters[domain.SideB]))
	for _, roster := range m.Rosters {
		out = append(out, roster...)
	}
	return out
}

func (m *Match) clone() Match {
	c := *m
	c.Entered = cloneSet(m.Entered)
	c.Left = cloneSet(m.Left)
	c.Exited = cloneSet(m.Exited)
	for side := range m.Rosters {
		c.Rosters[side] = append([]string(nil), m.Rosters[side]...)
	}
	return c
}

func cloneSet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

type matchBook struct {
	mu       sync.Mutex
	byID     map[string]*Match
	byMember map[string]string
}

func newMatchBook() *matchBook {
	return &matchBook{
		byID:     make(map[string]*Match),
		byMember: make(map[string]string),
	}
}

func (b *matchBook) add(m *Match) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m.Entered == nil {
		m.Entered = make(map[string]bool)
	}
	if m.Left == nil {
		m.Left = make(map[string]bool)
	}
	if m.Exited == nil {
		m.Exited = make(map[string]bool)
	}
	b.byID[m.ID] = m
	for _, id := range m.Members() {
		b.byMember[id] = m.ID
	}
}

func (b *matchBook) get(id string) (Match, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.byID[id]
	if !ok {
		return Match{}, false
	}
	return m.clone(), true
}

func (b *matchBook) matchOf(memberID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.byMember[memberID]
	return id, ok
}

// update runs fn on the live match under the book lock and returns a copy of
// the result.
func (b *matchBook) update(id string, fn func(m *Match) error) (Match, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.byID[id]
	if !ok {
		return Match{}, ErrMatchNotFound
	}
	if err := fn(m); err != nil {
		return Match{}, err
	}
	return m.clone(), nil
}

// release lets a member queue again once they are out of the arena.
func (b *matchBook) release(matchID, memberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.byMember[memberID] == matchID {
		delete(b.byMember, memberID)
	}
}

func (b *matchBook) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.byID[id]
	if !ok {
		return
	}
	for _, member := range m.Members() {
		if b.byMember[member] == id {
			delete(b.byMember, member)
		}
	}
	delete(b.byID, id)
}

func (o *Orchestrator) Match(matchID string) (Match, error) {
	m, ok := o.matches.get(matchID)
	if !ok {
		return Match{}, ErrMatchNotFound
	}
	return m, nil
}

func participant(memberID string) func(m *Match) error {
	return func(m *Match) error {
		if _, ok := m.SideOf(memberID); !ok {
			return ErrNotParticipant
		}
		return nil
	}
}

// OnMemberEntered records that a member reached the arena.
func (o *Orchestrator) OnMemberEntered(matchID, memberID string) error {
	_, err := o.matches.update(matchID, func(m *Match) error {
		if err := participant(memberID)(m); err != nil {
			return err
		}
		m.Entered[memberID] = true
		return nil
	})
	return err
}

// OnMatchStarted moves the match to in progress. When configured, a match
// that starts without every member present is ended unrated.
func (o *Orchestrator) OnMatchStarted(ctx context.Context, matchID string) error {
	_, err := o.matches.update(matchID, func(m *Match) error {
		if m.Status == MatchWaiting {
			m.Status = MatchInProgress
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !o.cfg.StopGameIncomplete {
		return nil
	}
	_, err = o.CheckIncomplete(ctx, matchID)
	return err
}

// CheckIncomplete ends the match unrated when fewer members entered than a
// full match needs. It reports whether the match was ended.
func (o *Orchestrator) CheckIncomplete(ctx context.Context, matchID string) (bool, error) {
	required := 2 * o.cfg.MinPlayersPerTeam()
	if required > constants.PlayersPerMatch {
		required = constants.PlayersPerMatch
	}

	incomplete := false
	_, err := o.matches.update(matchID, func(m *Match) error {
		if m.Status == MatchEnded {
			return nil
		}
		present := 0
		for id := range m.Entered {
			if !m.Left[id] {
				present++
			}
		}
		if present >= required {
			return nil
		}
		incomplete = true
		m.Status = MatchEnded
		m.Rated = false
		return nil
	})
	if err != nil || !incomplete {
		return false, err
	}

	o.logger.Info().Str("match_id", matchID).Int("required", required).Msg("match incomplete, ending unrated")
	if err := o.host.EndMatchUnrated(ctx, matchID); err != nil {
		return true, fmt.Errorf("failed to end incomplete match: %w", err)
	}
	return true, nil
}

// OnInviteDeclined applies the before-start forfeit to a member who refused
// or ignored the arena invite.
func (o *Orchestrator) OnInviteDeclined(ctx context.Context, matchID, memberID string) error {
	m, err := o.matches.update(matchID, func(m *Match) error {
		if err := participant(memberID)(m); err != nil {
			return err
		}
		m.Left[memberID] = true
		m.Exited[memberID] = true
		return nil
	})
	if err != nil {
		return err
	}
	o.matches.release(matchID, memberID)

	if m.Rated && m.Status != MatchEnded {
		err := o.ledger.ApplyForfeitLoss(ctx, ledger.ForfeitEvent{
			EventID:    eventID(matchID, "declined", memberID),
			MemberID:   memberID,
			InProgress: false,
		})
		if err := ledgerErr(err); err != nil {
			return err
		}
	}

	return o.cleanupIfDone(ctx, m)
}

// OnMemberLeft handles a member quitting the arena. current carries the
// match teams' ratings at the time of the leave as reported by the host; the
// creation snapshot is used when it is nil.
func (o *Orchestrator) OnMemberLeft(ctx context.Context, matchID, memberID string, current *[domain.SideCount]int) error {
	var statusBefore MatchStatus
	var alreadyLeft bool
	m, err := o.matches.update(matchID, func(m *Match) error {
		if err := participant(memberID)(m); err != nil {
			return err
		}
		statusBefore = m.Status
		alreadyLeft = m.Left[memberID]
		if m.Status != MatchEnded {
			m.Left[memberID] = true
		}
		m.Exited[memberID] = true
		return nil
	})
	if err != nil {
		return err
	}
	o.matches.release(matchID, memberID)

	afk := statusBefore == MatchWaiting && o.cfg.DeserterOnAFK
	quit := statusBefore == MatchInProgress && o.cfg.DeserterOnLeave
	if afk || quit {
		o.deserters.Mark(memberID, o.now().Add(o.cfg.DeserterDuration))
		o.logger.Info().Str("match_id", matchID).Str("member_id", memberID).Msg("member marked as deserter")
	}

	if m.Rated && statusBefore != MatchEnded && !alreadyLeft {
		side, _ := m.SideOf(memberID)
		ev := ledger.LeaveEvent{
			EventID:  eventID(matchID, "left", memberID),
			MatchID:  matchID,
			MemberID: memberID,
			Side:     side,
			Current:  m.Snapshot,
			Snapshot: m.Snapshot,
		}
		if current != nil {
			ev.Current = *current
		}
		if err := ledgerErr(o.ledger.ApplyLeaveDuringActiveMatch(ctx, ev)); err != nil {
			return err
		}
	}

	return o.cleanupIfDone(ctx, m)
}

// OnMatchEnded rates every member still in the arena. final holds the match
// teams' ratings computed by the host.
func (o *Orchestrator) OnMatchEnded(ctx context.Context, matchID string, winner domain.Side, final [domain.SideCount]int) error {
	// A failed ledger write leaves Scored unset so the host can resend the
	// end event; members already rated are skipped by the ledger.
	m, err := o.matches.update(matchID, func(m *Match) error {
		m.Status = MatchEnded
		return nil
	})
	if err != nil {
		return err
	}
	if m.Scored || !m.Rated {
		o.logger.Debug().Str("match_id", matchID).Bool("rated", m.Rated).Msg("match ended without rating")
		return nil
	}

	res := ledger.MatchResult{
		EventID:  eventID(matchID, "result", ""),
		MatchID:  matchID,
		Winner:   winner,
		Final:    final,
		Snapshot: m.Snapshot,
	}
	for side, roster := range m.Rosters {
		for _, id := range roster {
			if m.Left[id] {
				continue
			}
			res.Participants = append(res.Participants, ledger.Participant{MemberID: id, Side: domain.Side(side)})
		}
	}

	if err := o.ledger.ApplyMatchResult(ctx, res); err != nil {
		return fmt.Errorf("failed to apply match result: %w", err)
	}
	if _, err := o.matches.update(matchID, func(m *Match) error {
		m.Scored = true
		return nil
	}); err != nil && !errors.Is(err, ErrMatchNotFound) {
		return err
	}
	o.logger.Info().
		Str("match_id", matchID).
		Str("winner", winner.String()).
		Int("delta_winner", res.Delta(winner)).
		Int("delta_loser", res.Delta(winner.Other())).
		Msg("match rated")
	return nil
}

// OnMemberExited records a member leaving the arena after it ended. The
// match teams are removed once everybody is out.
func (o *Orchestrator) OnMemberExited(ctx context.Context, matchID, memberID string) error {
	m, err := o.matches.update(matchID, func(m *Match) error {
		if err := participant(memberID)(m); err != nil {
			return err
		}
		m.Exited[memberID] = true
		return nil
	})
	if err != nil {
		return err
	}
	o.matches.release(matchID, memberID)
	return o.cleanupIfDone(ctx, m)
}

func (o *Orchestrator) cleanupIfDone(ctx context.Context, m Match) error {
	for _, id := range m.Members() {
		if !m.Exited[id] {
			return nil
		}
	}

	o.purgeMatchTeams(ctx, m.ID)
	o.matches.remove(m.ID)
	o.logger.Debug().Str("match_id", m.ID).Msg("match cleaned up")
	return nil
}

func eventID(matchID, kind, memberID string) string {
	if memberID == "" {
		return matchID + ":" + kind
	}
	return matchID + ":" + kind + ":" + memberID
}

// ledgerErr drops the errors callers are expected to survive.
func ledgerErr(err error) error {
	if err == nil || errors.Is(err, ledger.ErrNoPersistentTeam) {
		return nil
	}
	return fmt.Errorf("failed to update rating: %w", err)
}
