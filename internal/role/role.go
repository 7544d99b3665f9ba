// Package role derives a queued candidate's combat role from where their
// talent points are invested.
package role

import "github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"

type Category int

// Order matters: Classify scans in this order and earlier categories win ties.
const (
	Melee Category = iota
	Ranged
	Healer
)

const categoryCount = 3

func (c Category) String() string {
	switch c {
	case Melee:
		return "melee"
	case Ranged:
		return "ranged"
	case Healer:
		return "healer"
	}
	return "unknown"
}

func (c Category) IsDPS() bool {
	return c == Melee || c == Ranged
}

// ForbiddenLimit is the investment in forbidden trees at which a candidate
// is refused.
const ForbiddenLimit = 36

type Classifier interface {
	Classify(c *domain.Candidate) Category
}

// Table maps talent trees to categories. Built once and never mutated.
type Table struct {
	trees     map[int]Category
	forbidden map[int]struct{}
}

func NewTable(melee, ranged, healer, forbidden []int) Table {
	t := Table{
		trees:     make(map[int]Category, len(melee)+len(ranged)+len(healer)),
		forbidden: make(map[int]struct{}, len(forbidden)),
	}
	for _, id := range melee {
		t.trees[id] = Melee
	}
	for _, id := range ranged {
		t.trees[id] = Ranged
	}
	for _, id := range healer {
		t.trees[id] = Healer
	}
	for _, id := range forbidden {
		t.forbidden[id] = struct{}{}
	}
	return t
}

// DefaultTable covers the 3.3.5 talent tabs.
func DefaultTable() Table {
	return NewTable(
		// arms, fury, prot warrior, prot/ret paladin, rogue x3, death knight x3, enhancement, feral
		[]int{161, 164, 163, 383, 381, 182, 181, 183, 398, 399, 400, 263, 281},
		// hunter x3, shadow, elemental, mage x3, warlock x3, balance
		[]int{361, 363, 362, 203, 261, 81, 41, 61, 302, 303, 301, 283},
		// holy paladin, discipline, holy priest, restoration shaman, restoration druid
		[]int{382, 201, 202, 262, 282},
		// tank trees
		[]int{163, 383},
	)
}

type TableClassifier struct {
	table Table
}

func NewClassifier(table Table) *TableClassifier {
	return &TableClassifier{table: table}
}

func (tc *TableClassifier) Classify(c *domain.Candidate) Category {
	var totals [categoryCount]int
	for _, inv := range c.Talents {
		if cat, ok := tc.table.trees[inv.Tree]; ok {
			totals[cat] += inv.Rank
		}
	}

	best := Melee
	top := 0
	for i := 0; i < categoryCount; i++ {
		if totals[i] > top {
			best = Category(i)
			top = totals[i]
		}
	}
	return best
}

// ForbiddenInvestment sums the ranks a candidate has in forbidden trees.
func (tc *TableClassifier) ForbiddenInvestment(c *domain.Candidate) int {
	total := 0
	for _, inv := range c.Talents {
		if _, ok := tc.table.forbidden[inv.Tree]; ok {
			total += inv.Rank
		}
	}
	return total
}

func (tc *TableClassifier) HasForbiddenInvestment(c *domain.Candidate) bool {
	return tc.ForbiddenInvestment(c) >= ForbiddenLimit
}
