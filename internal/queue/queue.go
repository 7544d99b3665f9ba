// Package queue holds the side-bucketed waiting entries for each bracket of
// the solo 3v3 queue.
package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
)

// Entry is one queue slot: a solo candidate or a group that must stay
// together.
type Entry struct {
	ID               string
	Side             domain.Side
	Rated            bool
	Invited          bool
	Members          []string
	TeamID           int64
	Rating           int
	MatchmakerRating int
	JoinedAt         time.Time
}

func (e *Entry) Size() int {
	return len(e.Members)
}

func (e *Entry) HasMember(id string) bool {
	for _, m := range e.Members {
		if m == id {
			return true
		}
	}
	return false
}

func ratedIndex(rated bool) int {
	if rated {
		return 1
	}
	return 0
}

// Buckets is the mutable pool content. It is only reachable through
// Pool.Exclusive so every mutation happens under the pool lock.
type Buckets struct {
	queued [2][domain.SideCount][]*Entry
}

// Bucket returns a copy of one bucket in queue order.
func (b *Buckets) Bucket(rated bool, side domain.Side) []*Entry {
	src := b.queued[ratedIndex(rated)][side]
	out := make([]*Entry, len(src))
	copy(out, src)
	return out
}

func (b *Buckets) Add(e *Entry) {
	r := ratedIndex(e.Rated)
	b.queued[r][e.Side] = append(b.queued[r][e.Side], e)
}

// Relabel moves e to the front of the other side's bucket and flips its side
// affinity.
func (b *Buckets) Relabel(e *Entry, to domain.Side) bool {
	if e.Side == to {
		return false
	}
	r := ratedIndex(e.Rated)
	if !b.detach(r, e.Side, e.ID) {
		return false
	}
	e.Side = to
	b.queued[r][to] = append([]*Entry{e}, b.queued[r][to]...)
	return true
}

func (b *Buckets) detach(r int, side domain.Side, id string) bool {
	bucket := b.queued[r][side]
	for i, e := range bucket {
		if e.ID == id {
			b.queued[r][side] = append(bucket[:i:i], bucket[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Buckets) Remove(id string) *Entry {
	for r := range b.queued {
		for side := range b.queued[r] {
			for _, e := range b.queued[r][side] {
				if e.ID == id {
					b.detach(r, domain.Side(side), id)
					return e
				}
			}
		}
	}
	return nil
}

func (b *Buckets) FindMember(memberID string) *Entry {
	for r := range b.queued {
		for side := range b.queued[r] {
			for _, e := range b.queued[r][side] {
				if e.HasMember(memberID) {
					return e
				}
			}
		}
	}
	return nil
}

// All returns every entry, unrated buckets first, side A before side B.
func (b *Buckets) All() []*Entry {
	var out []*Entry
	for r := range b.queued {
		for side := range b.queued[r] {
			out = append(out, b.queued[r][side]...)
		}
	}
	return out
}

func (b *Buckets) Len() int {
	n := 0
	for r := range b.queued {
		for side := range b.queued[r] {
			n += len(b.queued[r][side])
		}
	}
	return n
}

// Pool is the queue of one bracket.
type Pool struct {
	mu      sync.Mutex
	bracket int
	buckets Buckets
}

func NewPool(bracket int) *Pool {
	return &Pool{bracket: bracket}
}

func (p *Pool) Bracket() int {
	return p.bracket
}

// Exclusive runs fn with sole access to the pool content. Nothing else may
// add, remove or relabel entries while fn runs.
func (p *Pool) Exclusive(fn func(b *Buckets)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.buckets)
}

// SelectionPool collects the entries picked for one side during a sweep.
type SelectionPool struct {
	Selected    []*Entry
	PlayerCount int
}

func (s *SelectionPool) Init() {
	s.Selected = s.Selected[:0]
	s.PlayerCount = 0
}

// AddGroup selects e when the whole group fits under desired players.
func (s *SelectionPool) AddGroup(e *Entry, desired int) bool {
	if e.Invited || desired < s.PlayerCount+e.Size() {
		return false
	}
	s.Selected = append(s.Selected, e)
	s.PlayerCount += e.Size()
	return true
}

// Registry owns one pool per bracket.
type Registry struct {
	mu    sync.RWMutex
	pools map[int]*Pool
}

func NewRegistry() *Registry {
	return &Registry{pools: make(map[int]*Pool)}
}

func (r *Registry) Pool(bracket int) *Pool {
	r.mu.RLock()
	p, ok := r.pools[bracket]
	r.mu.RUnlock()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[bracket]; ok {
		return p
	}
	p = NewPool(bracket)
	r.pools[bracket] = p
	return p
}

// Pools returns every pool ordered by bracket.
func (r *Registry) Pools() []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].bracket < out[j].bracket })
	return out
}

// FindMember looks a member up in every pool.
func (r *Registry) FindMember(memberID string) (*Pool, *Entry) {
	for _, p := range r.Pools() {
		var found *Entry
		p.Exclusive(func(b *Buckets) {
			found = b.FindMember(memberID)
		})
		if found != nil {
			return p, found
		}
	}
	return nil, nil
}
