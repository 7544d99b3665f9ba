package db

import (
	"context"
)

const listTeamMembers = `-- name: ListTeamMembers :many
SELECT team_id, member_id, personal_rating, season_games, season_wins, week_games, week_wins, matchmaker_rating, max_matchmaker_rating
FROM team_members
WHERE team_id = ?
ORDER BY rowid ASC`

func (q *Queries) ListTeamMembers(ctx context.Context, teamID int64) ([]TeamMember, error) {
	rows, err := q.db.QueryContext(ctx, listTeamMembers, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TeamMember
	for rows.Next() {
		var i TeamMember
		if err := rows.Scan(
			&i.TeamID,
			&i.MemberID,
			&i.PersonalRating,
			&i.SeasonGames,
			&i.SeasonWins,
			&i.WeekGames,
			&i.WeekWins,
			&i.MatchmakerRating,
			&i.MaxMatchmakerRating,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertTeamMember = `-- name: UpsertTeamMember :exec
INSERT INTO team_members (
    team_id, member_id, personal_rating, season_games, season_wins, week_games, week_wins, matchmaker_rating, max_matchmaker_rating
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(team_id, member_id) DO UPDATE SET
    personal_rating = excluded.personal_rating,
    season_games = excluded.season_games,
    season_wins = excluded.season_wins,
    week_games = excluded.week_games,
    week_wins = excluded.week_wins,
    matchmaker_rating = excluded.matchmaker_rating,
    max_matchmaker_rating = excluded.max_matchmaker_rating`

type UpsertTeamMemberParams struct {
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

func (q *Queries) UpsertTeamMember(ctx context.Context, arg UpsertTeamMemberParams) error {
	_, err := q.db.ExecContext(ctx, upsertTeamMember,
		arg.TeamID,
		arg.MemberID,
		arg.PersonalRating,
		arg.SeasonGames,
		arg.SeasonWins,
		arg.WeekGames,
		arg.WeekWins,
		arg.MatchmakerRating,
		arg.MaxMatchmakerRating,
	)
	return err
}
