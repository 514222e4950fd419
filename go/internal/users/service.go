package users

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/mcdev12/quizrooms/go/internal/respond"
	"github.com/rs/zerolog/log"
)

// UsersApp defines what the service layer needs from the users application
type UsersApp interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	Leaderboard(ctx context.Context, limit int) ([]*models.User, error)
}

// Service exposes read-only user endpoints
type Service struct {
	app UsersApp
}

// NewService creates a new users HTTP service
func NewService(app UsersApp) *Service {
	return &Service{
		app: app,
	}
}

// RegisterRoutes mounts the user routes on the router
func (s *Service) RegisterRoutes(r *httprouter.Router) {
	r.GET("/users/:id", s.GetUser)
	r.GET("/leaderboard", s.Leaderboard)
}

// GetUser handles GET /users/:id
func (s *Service) GetUser(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id, err := strconv.ParseInt(p.ByName("id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(w, http.StatusBadRequest, "invalid_user_id")
		return
	}

	user, err := s.app.GetUser(r.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		respond.Error(w, http.StatusNotFound, "user_not_found")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("user_id", id).Msg("failed to get user")
		respond.Error(w, http.StatusInternalServerError, "internal")
		return
	}

	respond.JSON(w, http.StatusOK, user)
}

// Leaderboard handles GET /leaderboard?limit=N
func (s *Service) Leaderboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	users, err := s.app.Leaderboard(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to load leaderboard")
		respond.Error(w, http.StatusInternalServerError, "internal")
		return
	}

	respond.JSON(w, http.StatusOK, map[string]any{"users": users})
}
