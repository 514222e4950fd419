package db

import (
	"context"

	"github.com/lib/pq"
)

const getRandomQuestion = `-- name: GetRandomQuestion :one
SELECT q.id, q.kind, q.prompt, q.quote_text, q.image_path, q.answer, q.alternatives,
       q.explanation, q.status, u.display_name AS author_name
FROM questions q
LEFT JOIN users u ON u.id = q.created_by_id
WHERE q.status = ANY($1::text[])
  AND (
    cardinality($2::bigint[]) = 0
    OR EXISTS (
      SELECT 1 FROM question_categories qc
      WHERE qc.question_id = q.id AND qc.category_id = ANY($2::bigint[])
    )
  )
ORDER BY random()
LIMIT 1
`

type GetRandomQuestionParams struct {
	Statuses    []string
	CategoryIDs []int64
}

func (q *Queries) GetRandomQuestion(ctx context.Context, arg GetRandomQuestionParams) (GetRandomQuestionRow, error) {
	categories := arg.CategoryIDs
	if categories == nil {
		categories = []int64{}
	}
	row := q.db.QueryRowContext(ctx, getRandomQuestion, pq.Array(arg.Statuses), pq.Array(categories))
	var i GetRandomQuestionRow
	err := row.Scan(
		&i.ID,
		&i.Kind,
		&i.Prompt,
		&i.QuoteText,
		&i.ImagePath,
		&i.Answer,
		&i.Alternatives,
		&i.Explanation,
		&i.Status,
		&i.AuthorName,
	)
	return i, err
}

const listQuestionCategories = `-- name: ListQuestionCategories :many
SELECT c.id, c.name
FROM question_categories qc
JOIN categories c ON c.id = qc.category_id
WHERE qc.question_id = $1
ORDER BY c.id
`

func (q *Queries) ListQuestionCategories(ctx context.Context, questionID int64) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listQuestionCategories, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var i Category
		if err := rows.Scan(&i.ID, &i.Name); err != nil {
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
