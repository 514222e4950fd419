package db

import (
	"context"
	"time"
)

type User struct {
	ID          int64
	DisplayName string
	Avatar      string
	Wins        int32
	CreatedAt   time.Time
}

const getUser = `-- name: GetUser :one
SELECT id, display_name, avatar, wins, created_at FROM users
WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	row := q.db.QueryRowContext(ctx, getUser, id)
	var i User
	err := row.Scan(
		&i.ID,
		&i.DisplayName,
		&i.Avatar,
		&i.Wins,
		&i.CreatedAt,
	)
	return i, err
}

const incrementUserWins = `-- name: IncrementUserWins :execrows
UPDATE users SET wins = wins + 1
WHERE id = $1
`

func (q *Queries) IncrementUserWins(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, incrementUserWins, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listLeaderboard = `-- name: ListLeaderboard :many
SELECT id, display_name, avatar, wins, created_at FROM users
WHERE wins > 0
ORDER BY wins DESC, id
LIMIT $1
`

func (q *Queries) ListLeaderboard(ctx context.Context, limit int32) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listLeaderboard, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		var i User
		if err := rows.Scan(
			&i.ID,
			&i.DisplayName,
			&i.Avatar,
			&i.Wins,
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
