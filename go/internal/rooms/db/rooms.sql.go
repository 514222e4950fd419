package db

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

const roomColumns = `code, name, owner_id, visibility, max_players, excluded_names, categories,
    answer_window_seconds, target_score, scoring, show_guesses, approved_only,
    pre_round_delay_seconds, result_delay_seconds, created_at, updated_at`

func scanRoom(row interface{ Scan(...interface{}) error }) (Room, error) {
	var i Room
	err := row.Scan(
		&i.Code,
		&i.Name,
		&i.OwnerID,
		&i.Visibility,
		&i.MaxPlayers,
		pq.Array(&i.ExcludedNames),
		pq.Array(&i.Categories),
		&i.AnswerWindowSeconds,
		&i.TargetScore,
		&i.Scoring,
		&i.ShowGuesses,
		&i.ApprovedOnly,
		&i.PreRoundDelaySeconds,
		&i.ResultDelaySeconds,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getRoomByCode = `-- name: GetRoomByCode :one
SELECT ` + roomColumns + `
FROM rooms
WHERE code = $1
`

func (q *Queries) GetRoomByCode(ctx context.Context, code string) (Room, error) {
	row := q.db.QueryRowContext(ctx, getRoomByCode, code)
	return scanRoom(row)
}

const roomCodeExists = `-- name: RoomCodeExists :one
SELECT EXISTS (SELECT 1 FROM rooms WHERE code = $1)
`

func (q *Queries) RoomCodeExists(ctx context.Context, code string) (bool, error) {
	row := q.db.QueryRowContext(ctx, roomCodeExists, code)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const createRoom = `-- name: CreateRoom :one
INSERT INTO rooms (
    code, name, owner_id, visibility, max_players, excluded_names, categories,
    answer_window_seconds, target_score, scoring, show_guesses, approved_only,
    pre_round_delay_seconds, result_delay_seconds
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
)
RETURNING ` + roomColumns + `
`

type CreateRoomParams struct {
	Code                 string
	Name                 string
	OwnerID              sql.NullInt64
	Visibility           string
	MaxPlayers           int32
	ExcludedNames        []string
	Categories           []int64
	AnswerWindowSeconds  int32
	TargetScore          int32
	Scoring              string
	ShowGuesses          bool
	ApprovedOnly         bool
	PreRoundDelaySeconds int32
	ResultDelaySeconds   int32
}

func (q *Queries) CreateRoom(ctx context.Context, arg CreateRoomParams) (Room, error) {
	row := q.db.QueryRowContext(ctx, createRoom,
		arg.Code,
		arg.Name,
		arg.OwnerID,
		arg.Visibility,
		arg.MaxPlayers,
		pq.Array(arg.ExcludedNames),
		pq.Array(arg.Categories),
		arg.AnswerWindowSeconds,
		arg.TargetScore,
		arg.Scoring,
		arg.ShowGuesses,
		arg.ApprovedOnly,
		arg.PreRoundDelaySeconds,
		arg.ResultDelaySeconds,
	)
	return scanRoom(row)
}

const updateRoomSettings = `-- name: UpdateRoomSettings :execrows
UPDATE rooms SET
    visibility              = COALESCE($2, visibility),
    max_players             = COALESCE($3, max_players),
    excluded_names          = CASE WHEN $4::boolean THEN $5::text[] ELSE excluded_names END,
    categories              = CASE WHEN $6::boolean THEN $7::bigint[] ELSE categories END,
    answer_window_seconds   = COALESCE($8, answer_window_seconds),
    target_score            = COALESCE($9, target_score),
    scoring                 = COALESCE($10, scoring),
    show_guesses            = COALESCE($11, show_guesses),
    approved_only           = COALESCE($12, approved_only),
    pre_round_delay_seconds = COALESCE($13, pre_round_delay_seconds),
    result_delay_seconds    = COALESCE($14, result_delay_seconds),
    updated_at              = now()
WHERE code = $1
`

type UpdateRoomSettingsParams struct {
	Code                 string
	Visibility           sql.NullString
	MaxPlayers           sql.NullInt32
	SetExcludedNames     bool
	ExcludedNames        []string
	SetCategories        bool
	Categories           []int64
	AnswerWindowSeconds  sql.NullInt32
	TargetScore          sql.NullInt32
	Scoring              sql.NullString
	ShowGuesses          sql.NullBool
	ApprovedOnly         sql.NullBool
	PreRoundDelaySeconds sql.NullInt32
	ResultDelaySeconds   sql.NullInt32
}

func (q *Queries) UpdateRoomSettings(ctx context.Context, arg UpdateRoomSettingsParams) (int64, error) {
	excluded := arg.ExcludedNames
	if excluded == nil {
		excluded = []string{}
	}
	categories := arg.Categories
	if categories == nil {
		categories = []int64{}
	}
	result, err := q.db.ExecContext(ctx, updateRoomSettings,
		arg.Code,
		arg.Visibility,
		arg.MaxPlayers,
		arg.SetExcludedNames,
		pq.Array(excluded),
		arg.SetCategories,
		pq.Array(categories),
		arg.AnswerWindowSeconds,
		arg.TargetScore,
		arg.Scoring,
		arg.ShowGuesses,
		arg.ApprovedOnly,
		arg.PreRoundDelaySeconds,
		arg.ResultDelaySeconds,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updateRoomOwner = `-- name: UpdateRoomOwner :execrows
UPDATE rooms SET owner_id = $2, updated_at = now()
WHERE code = $1
`

func (q *Queries) UpdateRoomOwner(ctx context.Context, code string, ownerID sql.NullInt64) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateRoomOwner, code, ownerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const addRoomMember = `-- name: AddRoomMember :exec
INSERT INTO room_members (room_code, user_id)
VALUES ($1, $2)
ON CONFLICT (room_code, user_id) DO NOTHING
`

func (q *Queries) AddRoomMember(ctx context.Context, roomCode string, userID int64) error {
	_, err := q.db.ExecContext(ctx, addRoomMember, roomCode, userID)
	return err
}

const listRoomMembers = `-- name: ListRoomMembers :many
SELECT u.id, u.display_name, u.avatar
FROM room_members m
JOIN users u ON u.id = m.user_id
WHERE m.room_code = $1
ORDER BY m.joined_at, u.id
`

func (q *Queries) ListRoomMembers(ctx context.Context, roomCode string) ([]ListRoomMembersRow, error) {
	rows, err := q.db.QueryContext(ctx, listRoomMembers, roomCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListRoomMembersRow
	for rows.Next() {
		var i ListRoomMembersRow
		if err := rows.Scan(&i.UserID, &i.DisplayName, &i.Avatar); err != nil {
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
