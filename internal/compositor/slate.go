package compositor

import "github.com/laasker/mod-arena-3v3-solo-queue/internal/role"

// TeamSize is the number of members on each side of a solo 3v3 match.
const TeamSize = 3

const maxDPS = 2

// Slate counts the roles assigned to one side during a sweep.
type Slate struct {
	Healers int
	Melee   int
	Ranged  int
}

func (s Slate) Total() int {
	return s.Healers + s.Melee + s.Ranged
}

func (s Slate) DPS() int {
	return s.Melee + s.Ranged
}

// CanAdd reports whether one more member of r fits. A side never takes a
// second healer; strict mode allows one of each role, relaxed mode two DPS of
// any kind.
func (s Slate) CanAdd(r role.Category, strict bool) bool {
	if s.Total() >= TeamSize {
		return false
	}
	if r == role.Healer {
		return s.Healers < 1
	}
	if strict {
		if r == role.Melee {
			return s.Melee < 1
		}
		return s.Ranged < 1
	}
	return s.DPS() < maxDPS
}

// CanAddAll reports whether every role in roles fits together.
func (s Slate) CanAddAll(roles []role.Category, strict bool) bool {
	for _, r := range roles {
		if !s.CanAdd(r, strict) {
			return false
		}
		s.Add(r)
	}
	return true
}

func (s *Slate) Add(r role.Category) {
	switch r {
	case role.Healer:
		s.Healers++
	case role.Melee:
		s.Melee++
	case role.Ranged:
		s.Ranged++
	}
}

// Valid reports whether the slate is a finished side. With a full team size
// the composition must be exact; smaller test sizes only need the side
// filled.
func (s Slate) Valid(strict bool, teamSize int) bool {
	if teamSize < TeamSize {
		return s.Total() == teamSize
	}
	if strict {
		return s.Healers == 1 && s.Melee == 1 && s.Ranged == 1
	}
	return s.Healers == 1 && s.DPS() == maxDPS
}
