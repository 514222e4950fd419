// Package questions reads the question bank.
package questions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/mcdev12/quizrooms/go/internal/questions/db"
	"github.com/mcdev12/quizrooms/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// Querier defines what the repository needs from the database layer
type Querier interface {
	GetRandomQuestion(ctx context.Context, arg db.GetRandomQuestionParams) (db.GetRandomQuestionRow, error)
	ListQuestionCategories(ctx context.Context, questionID int64) ([]db.Category, error)
}

// Filter narrows the random draw
type Filter struct {
	ApprovedOnly bool
	CategoryIDs  []int64
}

// Repository implements question bank reads
type Repository struct {
	queries Querier
}

// NewRepository creates a new questions repository
func NewRepository(querier Querier) *Repository {
	return &Repository{queries: querier}
}

// FindRandomQuestion picks one question uniformly at random among those matching
// the filter. It returns models.ErrNotFound when nothing matches.
func (r *Repository) FindRandomQuestion(ctx context.Context, filter Filter) (*models.Question, error) {
	statuses := []string{string(models.QuestionStatusApproved)}
	if !filter.ApprovedOnly {
		statuses = append(statuses, string(models.QuestionStatusPending))
	}

	row, err := r.queries.GetRandomQuestion(ctx, db.GetRandomQuestionParams{
		Statuses:    statuses,
		CategoryIDs: filter.CategoryIDs,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to draw question: %w", err)
	}

	cats, err := r.queries.ListQuestionCategories(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list question categories: %w", err)
	}

	q := &models.Question{
		ID:           row.ID,
		Kind:         models.QuestionKind(row.Kind),
		Prompt:       row.Prompt,
		QuoteText:    sqlutil.FromSqlStringPtr(row.QuoteText),
		ImagePath:    sqlutil.FromSqlStringPtr(row.ImagePath),
		Answer:       row.Answer,
		Alternatives: decodeAlternatives(row.Alternatives),
		Explanation:  sqlutil.FromSqlStringPtr(row.Explanation),
		Status:       models.QuestionStatus(row.Status),
		AuthorName:   sqlutil.FromSqlStringPtr(row.AuthorName),
	}
	for _, c := range cats {
		q.Categories = append(q.Categories, models.Category{ID: c.ID, Name: c.Name})
	}
	return q, nil
}

// decodeAlternatives accepts a JSON array of strings or numbers; anything else yields none.
func decodeAlternatives(raw pqtype.NullRawMessage) []string {
	if !raw.Valid || len(raw.RawMessage) == 0 {
		return nil
	}
	var items []any
	if err := json.Unmarshal(raw.RawMessage, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}
