package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/mcdev12/quizrooms/go/internal/users/db"
)

// Querier defines what the repository needs from the database layer
type Querier interface {
	GetUser(ctx context.Context, id int64) (db.User, error)
	IncrementUserWins(ctx context.Context, id int64) (int64, error)
	ListLeaderboard(ctx context.Context, limit int32) ([]db.User, error)
}

// Repository implements user data access operations
type Repository struct {
	queries Querier
}

// NewRepository creates a new users repository
func NewRepository(querier Querier) *Repository {
	return &Repository{
		queries: querier,
	}
}

// GetUser retrieves a user by ID
func (r *Repository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := r.queries.GetUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return dbUserToModel(user), nil
}

// IncrementUserWins adds one win to the user's record
func (r *Repository) IncrementUserWins(ctx context.Context, id int64) error {
	n, err := r.queries.IncrementUserWins(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to increment wins: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// ListLeaderboard returns users with at least one win, best first
func (r *Repository) ListLeaderboard(ctx context.Context, limit int) ([]*models.User, error) {
	rows, err := r.queries.ListLeaderboard(ctx, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard: %w", err)
	}

	users := make([]*models.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, dbUserToModel(row))
	}
	return users, nil
}

func dbUserToModel(u db.User) *models.User {
	return &models.User{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
		Wins:        int(u.Wins),
		CreatedAt:   u.CreatedAt,
	}
}
