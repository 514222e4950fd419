package db

import (
	"database/sql"

	"github.com/sqlc-dev/pqtype"
)

type GetRandomQuestionRow struct {
	ID           int64
	Kind         string
	Prompt       string
	QuoteText    sql.NullString
	ImagePath    sql.NullString
	Answer       string
	Alternatives pqtype.NullRawMessage
	Explanation  sql.NullString
	Status       string
	AuthorName   sql.NullString
}

type Category struct {
	ID   int64
	Name string
}
