package domain

import (
	"time"
)

type Side int

const (
	SideA Side = iota
	SideB
)

const SideCount = 2

func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

type TalentInvestment struct {
	Tree int // talent tab id
	Rank int // ranks taken in one talent of that tree
}

type Candidate struct {
	ID       string
	Name     string
	Level    int
	HomeSide Side
	Talents  []TalentInvestment
}

// Category partitions teams for ranking. Only solo 3v3 teams are managed here
// but the column exists so ranks never mix with other brackets.
type Category int

const CategorySolo3v3 Category = 4

type TeamKind string

const (
	TeamPersistent TeamKind = "persistent"
	TeamEphemeral  TeamKind = "ephemeral"
)

type Team struct {
	ID          int64
	Name        string
	Category    Category
	Kind        TeamKind
	MatchID     string // set only for ephemeral teams
	CaptainID   string
	Rating      int
	Rank        int
	SeasonGames int
	SeasonWins  int
	WeekGames   int
	WeekWins    int
	Members     []Member
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (t *Team) IsEphemeral() bool {
	return t.Kind == TeamEphemeral
}

func (t *Team) Member(id string) *Member {
	for i := range t.Members {
		if t.Members[i].ID == id {
			return &t.Members[i]
		}
	}
	return nil
}

type Member struct {
	ID                  string
	PersonalRating      int
	SeasonGames         int
	SeasonWins          int
	WeekGames           int
	WeekWins            int
	MatchmakerRating    int
	MaxMatchmakerRating int
}

type RatingEventKind string

const (
	EventForfeit     RatingEventKind = "forfeit"
	EventMatchWin    RatingEventKind = "match_win"
	EventMatchLoss   RatingEventKind = "match_loss"
	EventLeaveActive RatingEventKind = "leave_active"
)

type RatingEvent struct {
	ID                    string // nanoid
	EventID               string
	TeamID                int64
	MemberID              string
	Kind                  RatingEventKind
	Delta                 int
	RatingAfter           int
	MatchmakerRatingAfter int
	CreatedAt             time.Time
}

// MatchTicket is what the match host needs to open an arena instance.
type MatchTicket struct {
	MatchID string
	Bracket int
	Rated   bool
	Sides   [SideCount]TicketSide
}

type TicketSide struct {
	TeamID  int64
	Name    string
	Rating  int
	Members []string
}
