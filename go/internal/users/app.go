package users

import (
	"context"
	"fmt"

	"github.com/mcdev12/quizrooms/go/internal/models"
)

const (
	defaultLeaderboardSize = 20
	maxLeaderboardSize     = 100
)

// UsersRepository defines what the app layer needs from the repository
type UsersRepository interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	IncrementUserWins(ctx context.Context, id int64) error
	ListLeaderboard(ctx context.Context, limit int) ([]*models.User, error)
}

// App handles users business logic
type App struct {
	repo UsersRepository
}

// NewApp creates a new users App
func NewApp(repo UsersRepository) *App {
	return &App{
		repo: repo,
	}
}

// GetUser retrieves a user by ID
func (a *App) GetUser(ctx context.Context, id int64) (*models.User, error) {
	if id <= 0 {
		return nil, fmt.Errorf("validation failed: user id must be positive")
	}
	user, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Leaderboard returns the top winners. Limits outside (0, 100] fall back to the default.
func (a *App) Leaderboard(ctx context.Context, limit int) ([]*models.User, error) {
	if limit <= 0 || limit > maxLeaderboardSize {
		limit = defaultLeaderboardSize
	}
	users, err := a.repo.ListLeaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return users, nil
}
