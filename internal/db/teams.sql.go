package db

import (
	"context"
	"database/sql"
	"time"
)

const teamColumns = `id, name, category, kind, match_id, captain_id, rating, rank, season_games, season_wins, week_games, week_wins, created_at, updated_at`

func scanTeam(row interface{ Scan(...interface{}) error }) (Team, error) {
	var i Team
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Category,
		&i.Kind,
		&i.MatchID,
		&i.CaptainID,
		&i.Rating,
		&i.Rank,
		&i.SeasonGames,
		&i.SeasonWins,
		&i.WeekGames,
		&i.WeekWins,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createTeam = `-- name: CreateTeam :one
INSERT INTO teams (
    id, name, category, kind, match_id, captain_id, rating, rank, season_games, season_wins, week_games, week_wins, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`

type CreateTeamParams struct {
	ID          sql.NullInt64
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

func (q *Queries) CreateTeam(ctx context.Context, arg CreateTeamParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createTeam,
		arg.ID,
		arg.Name,
		arg.Category,
		arg.Kind,
		arg.MatchID,
		arg.CaptainID,
		arg.Rating,
		arg.Rank,
		arg.SeasonGames,
		arg.SeasonWins,
		arg.WeekGames,
		arg.WeekWins,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const nextEphemeralTeamID = `-- name: NextEphemeralTeamID :one
SELECT COALESCE(MAX(id) + 1, ?) FROM teams WHERE id >= ?`

func (q *Queries) NextEphemeralTeamID(ctx context.Context, base int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, nextEphemeralTeamID, base, base)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const maxPersistentTeamID = `-- name: MaxPersistentTeamID :one
SELECT COALESCE(MAX(id), 0) FROM teams WHERE kind = 'persistent'`

func (q *Queries) MaxPersistentTeamID(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, maxPersistentTeamID)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getTeam = `-- name: GetTeam :one
SELECT ` + teamColumns + ` FROM teams WHERE id = ?`

func (q *Queries) GetTeam(ctx context.Context, id int64) (Team, error) {
	return scanTeam(q.db.QueryRowContext(ctx, getTeam, id))
}

const getTeamByName = `-- name: GetTeamByName :one
SELECT ` + teamColumns + ` FROM teams WHERE name = ?`

func (q *Queries) GetTeamByName(ctx context.Context, name string) (Team, error) {
	return scanTeam(q.db.QueryRowContext(ctx, getTeamByName, name))
}

const getPersistentTeamByMember = `-- name: GetPersistentTeamByMember :one
SELECT t.id, t.name, t.category, t.kind, t.match_id, t.captain_id, t.rating, t.rank, t.season_games, t.season_wins, t.week_games, t.week_wins, t.created_at, t.updated_at
FROM teams t
JOIN team_members m ON m.team_id = t.id
WHERE m.member_id = ? AND t.category = ? AND t.kind = 'persistent'
LIMIT 1`

type GetPersistentTeamByMemberParams struct {
	MemberID string
	Category int64
}

func (q *Queries) GetPersistentTeamByMember(ctx context.Context, arg GetPersistentTeamByMemberParams) (Team, error) {
	return scanTeam(q.db.QueryRowContext(ctx, getPersistentTeamByMember, arg.MemberID, arg.Category))
}

const listTeamsByCategory = `-- name: ListTeamsByCategory :many
SELECT ` + teamColumns + ` FROM teams
WHERE category = ? AND kind = ?
ORDER BY rating DESC, id ASC
LIMIT ?`

type ListTeamsByCategoryParams struct {
	Category int64
	Kind     string
	Limit    int64
}

func (q *Queries) ListTeamsByCategory(ctx context.Context, arg ListTeamsByCategoryParams) ([]Team, error) {
	rows, err := q.db.QueryContext(ctx, listTeamsByCategory, arg.Category, arg.Kind, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Team
	for rows.Next() {
		i, err := scanTeam(rows)
		if err != nil {
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

const listTeamsByMatch = `-- name: ListTeamsByMatch :many
SELECT ` + teamColumns + ` FROM teams WHERE match_id = ? AND kind = 'ephemeral' ORDER BY id ASC`

func (q *Queries) ListTeamsByMatch(ctx context.Context, matchID string) ([]Team, error) {
	rows, err := q.db.QueryContext(ctx, listTeamsByMatch, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Team
	for rows.Next() {
		i, err := scanTeam(rows)
		if err != nil {
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

const updateTeamStats = `-- name: UpdateTeamStats :exec
UPDATE teams
SET rating = ?, rank = ?, season_games = ?, season_wins = ?, week_games = ?, week_wins = ?, updated_at = ?
WHERE id = ?`

type UpdateTeamStatsParams struct {
	Rating      int64
	Rank        int64
	SeasonGames int64
	SeasonWins  int64
	WeekGames   int64
	WeekWins    int64
	UpdatedAt   time.Time
	ID          int64
}

func (q *Queries) UpdateTeamStats(ctx context.Context, arg UpdateTeamStatsParams) error {
	_, err := q.db.ExecContext(ctx, updateTeamStats,
		arg.Rating,
		arg.Rank,
		arg.SeasonGames,
		arg.SeasonWins,
		arg.WeekGames,
		arg.WeekWins,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}

const deleteTeam = `-- name: DeleteTeam :exec
DELETE FROM teams WHERE id = ?`

func (q *Queries) DeleteTeam(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteTeam, id)
	return err
}

const resetWeekTeams = `-- name: ResetWeekTeams :exec
UPDATE teams SET week_games = 0, week_wins = 0, updated_at = ? WHERE category = ? AND kind = 'persistent'`

type ResetWeekParams struct {
	UpdatedAt time.Time
	Category  int64
}

func (q *Queries) ResetWeekTeams(ctx context.Context, arg ResetWeekParams) error {
	_, err := q.db.ExecContext(ctx, resetWeekTeams, arg.UpdatedAt, arg.Category)
	return err
}

const resetWeekMembers = `-- name: ResetWeekMembers :exec
UPDATE team_members SET week_games = 0, week_wins = 0
WHERE team_id IN (SELECT id FROM teams WHERE category = ? AND kind = 'persistent')`

func (q *Queries) ResetWeekMembers(ctx context.Context, category int64) error {
	_, err := q.db.ExecContext(ctx, resetWeekMembers, category)
	return err
}
