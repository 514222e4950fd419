package main

import (
	"context"

	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/mcdev12/quizrooms/go/internal/questions"
	"github.com/mcdev12/quizrooms/go/internal/quiz"
	"github.com/mcdev12/quizrooms/go/internal/rooms"
	"github.com/mcdev12/quizrooms/go/internal/users"
)

// quizStore composes the repositories into the quiz core's Store port.
type quizStore struct {
	rooms     *rooms.Repository
	questions *questions.Repository
	users     *users.Repository
}

var _ quiz.Store = (*quizStore)(nil)

func (s *quizStore) FindRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	return s.rooms.FindRoomByCode(ctx, code)
}

func (s *quizStore) UpdateRoomSettings(ctx context.Context, code string, patch models.RoomSettingsPatch) error {
	return s.rooms.UpdateRoomSettings(ctx, code, patch)
}

func (s *quizStore) UpdateRoomOwner(ctx context.Context, code string, userID *int64) error {
	return s.rooms.UpdateRoomOwner(ctx, code, userID)
}

func (s *quizStore) FindRandomQuestion(ctx context.Context, filter quiz.QuestionFilter) (*models.Question, error) {
	return s.questions.FindRandomQuestion(ctx, questions.Filter{
		ApprovedOnly: filter.ApprovedOnly,
		CategoryIDs:  filter.CategoryIDs,
	})
}

func (s *quizStore) IncrementUserWins(ctx context.Context, userID int64) error {
	return s.users.IncrementUserWins(ctx, userID)
}
