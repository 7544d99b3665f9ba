package db

import (
	"context"
	"time"
)

const insertRatingHistory = `-- name: InsertRatingHistory :exec
INSERT INTO rating_history (
    id, event_id, team_id, member_id, kind, delta, rating_after, matchmaker_rating_after, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

type InsertRatingHistoryParams struct {
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

func (q *Queries) InsertRatingHistory(ctx context.Context, arg InsertRatingHistoryParams) error {
	_, err := q.db.ExecContext(ctx, insertRatingHistory,
		arg.ID,
		arg.EventID,
		arg.TeamID,
		arg.MemberID,
		arg.Kind,
		arg.Delta,
		arg.RatingAfter,
		arg.MatchmakerRatingAfter,
		arg.CreatedAt,
	)
	return err
}

const hasRatingEvent = `-- name: HasRatingEvent :one
SELECT EXISTS(SELECT 1 FROM rating_history WHERE event_id = ? AND member_id = ?)`

type HasRatingEventParams struct {
	EventID  string
	MemberID string
}

func (q *Queries) HasRatingEvent(ctx context.Context, arg HasRatingEventParams) (bool, error) {
	row := q.db.QueryRowContext(ctx, hasRatingEvent, arg.EventID, arg.MemberID)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const getRatingHistoryByMember = `-- name: GetRatingHistoryByMember :many
SELECT id, event_id, team_id, member_id, kind, delta, rating_after, matchmaker_rating_after, created_at
FROM rating_history
WHERE member_id = ?
ORDER BY created_at DESC
LIMIT ?`

type GetRatingHistoryByMemberParams struct {
	MemberID string
	Limit    int64
}

func (q *Queries) GetRatingHistoryByMember(ctx context.Context, arg GetRatingHistoryByMemberParams) ([]RatingHistory, error) {
	rows, err := q.db.QueryContext(ctx, getRatingHistoryByMember, arg.MemberID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RatingHistory
	for rows.Next() {
		var i RatingHistory
		if err := rows.Scan(
			&i.ID,
			&i.EventID,
			&i.TeamID,
			&i.MemberID,
			&i.Kind,
			&i.Delta,
			&i.RatingAfter,
			&i.MatchmakerRatingAfter,
			&i.CreatedAt,
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
