package db

import (
	"time"
)

type Team struct {
	ID          int64
	Name        string
	Category    int64
	Kind        string
	MatchID     string
	CaptainID   string
	Rating      int64
	Rank        int64
	SeasonGames int64
	SeasonWins  int64
	WeekGames   int64
	WeekWins    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type TeamMember struct {
	TeamID              int64
	MemberID            string
	PersonalRating      int64
	SeasonGames         int64
	SeasonWins          int64
	WeekGames           int64
	WeekWins            int64
	MatchmakerRating    int64
	MaxMatchmakerRating int64
}

type RatingHistory struct {
	ID                    string
	EventID               string
	TeamID                int64
	MemberID              string
	Kind                  string
	Delta                 int64
	RatingAfter           int64
	MatchmakerRatingAfter int64
	CreatedAt             time.Time
}
