package rooms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/mcdev12/quizrooms/go/internal/rooms/db"
	"github.com/mcdev12/quizrooms/go/internal/sqlutil"
)

// Querier defines what the repository needs from the database layer
type Querier interface {
	GetRoomByCode(ctx context.Context, code string) (db.Room, error)
	RoomCodeExists(ctx context.Context, code string) (bool, error)
	ListRoomMembers(ctx context.Context, roomCode string) ([]db.ListRoomMembersRow, error)
	UpdateRoomSettings(ctx context.Context, arg db.UpdateRoomSettingsParams) (int64, error)
	UpdateRoomOwner(ctx context.Context, code string, ownerID sql.NullInt64) (int64, error)
}

// Repository implements room persistence
type Repository struct {
	db      *sql.DB
	queries Querier
}

// NewRepository creates a new rooms repository. database may be nil when
// CreateRoom is never called (tests).
func NewRepository(database *sql.DB, querier Querier) *Repository {
	return &Repository{
		db:      database,
		queries: querier,
	}
}

// FindRoomByCode loads the room settings together with its recorded members
func (r *Repository) FindRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	row, err := r.queries.GetRoomByCode(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("room %s: %w", code, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	members, err := r.queries.ListRoomMembers(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to list room members: %w", err)
	}

	room := dbRoomToModel(row)
	for _, m := range members {
		room.Members = append(room.Members, models.RoomMember{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			Avatar:      m.Avatar,
		})
	}
	return room, nil
}

// RoomCodeExists reports whether a persisted room already uses code
func (r *Repository) RoomCodeExists(ctx context.Context, code string) (bool, error) {
	exists, err := r.queries.RoomCodeExists(ctx, code)
	if err != nil {
		return false, fmt.Errorf("failed to check room code: %w", err)
	}
	return exists, nil
}

// UpdateRoomSettings writes the non-nil fields of patch
func (r *Repository) UpdateRoomSettings(ctx context.Context, code string, patch models.RoomSettingsPatch) error {
	n, err := r.queries.UpdateRoomSettings(ctx, db.UpdateRoomSettingsParams{
		Code:                 code,
		Visibility:           sqlutil.ToSqlStringAs(patch.Visibility),
		MaxPlayers:           sqlutil.ToSqlInt32(patch.MaxPlayers),
		SetExcludedNames:     patch.SetExcludedNames,
		ExcludedNames:        patch.ExcludedNames,
		SetCategories:        patch.SetCategories,
		Categories:           patch.Categories,
		AnswerWindowSeconds:  sqlutil.ToSqlInt32(patch.AnswerWindowSeconds),
		TargetScore:          sqlutil.ToSqlInt32(patch.TargetScore),
		Scoring:              sqlutil.ToSqlStringAs(patch.Scoring),
		ShowGuesses:          sqlutil.ToSqlBool(patch.ShowGuesses),
		ApprovedOnly:         sqlutil.ToSqlBool(patch.ApprovedOnly),
		PreRoundDelaySeconds: sqlutil.ToSqlInt32(patch.PreRoundDelaySeconds),
		ResultDelaySeconds:   sqlutil.ToSqlInt32(patch.ResultDelaySeconds),
	})
	if err != nil {
		return fmt.Errorf("failed to update room settings: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("room %s: %w", code, models.ErrNotFound)
	}
	return nil
}

// UpdateRoomOwner sets the owner, or clears it when userID is nil
func (r *Repository) UpdateRoomOwner(ctx context.Context, code string, userID *int64) error {
	n, err := r.queries.UpdateRoomOwner(ctx, code, sqlutil.ToSqlInt64(userID))
	if err != nil {
		return fmt.Errorf("failed to update room owner: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("room %s: %w", code, models.ErrNotFound)
	}
	return nil
}

// CreateRoom inserts the room and records the owner as its first member in one transaction
func (r *Repository) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	if r.db == nil {
		return nil, errors.New("rooms repository has no database handle")
	}

	var created db.Room
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) *db.Queries { return db.New(tx) }, func(q *db.Queries) error {
		s := req.Settings
		var err error
		created, err = q.CreateRoom(ctx, db.CreateRoomParams{
			Code:                 req.Code,
			Name:                 req.Name,
			OwnerID:              sqlutil.ToSqlInt64(&req.OwnerID),
			Visibility:           string(s.Visibility),
			MaxPlayers:           int32(s.MaxPlayers),
			ExcludedNames:        nonNilStrings(s.ExcludedNames),
			Categories:           nonNilInts(s.Categories),
			AnswerWindowSeconds:  int32(s.AnswerWindowSeconds),
			TargetScore:          int32(s.TargetScore),
			Scoring:              string(s.Scoring),
			ShowGuesses:          s.ShowGuesses,
			ApprovedOnly:         s.ApprovedOnly,
			PreRoundDelaySeconds: int32(s.PreRoundDelaySeconds),
			ResultDelaySeconds:   int32(s.ResultDelaySeconds),
		})
		if err != nil {
			return fmt.Errorf("insert room: %w", err)
		}
		if err := q.AddRoomMember(ctx, req.Code, req.OwnerID); err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	return dbRoomToModel(created), nil
}

func dbRoomToModel(row db.Room) *models.Room {
	return &models.Room{
		Code:    row.Code,
		Name:    row.Name,
		OwnerID: sqlutil.FromSqlInt64(row.OwnerID),
		Settings: models.RoomSettings{
			Visibility:           models.Visibility(row.Visibility),
			MaxPlayers:           int(row.MaxPlayers),
			ExcludedNames:        row.ExcludedNames,
			Categories:           row.Categories,
			AnswerWindowSeconds:  int(row.AnswerWindowSeconds),
			TargetScore:          int(row.TargetScore),
			Scoring:              models.ScoringMode(row.Scoring),
			ShowGuesses:          row.ShowGuesses,
			ApprovedOnly:         row.ApprovedOnly,
			PreRoundDelaySeconds: int(row.PreRoundDelaySeconds),
			ResultDelaySeconds:   int(row.ResultDelaySeconds),
		},
		CreatedAt: row.CreatedAt,
	}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilInts(s []int64) []int64 {
	if s == nil {
		return []int64{}
	}
	return s
}
