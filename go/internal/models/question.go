package models

// QuestionKind is the presentation variant of a question
type QuestionKind string

const (
	QuestionKindQuote QuestionKind = "quote"
	QuestionKindImage QuestionKind = "image"
	QuestionKindPlain QuestionKind = "plain"
)

type QuestionStatus string

const (
	QuestionStatusPending  QuestionStatus = "pending"
	QuestionStatusApproved QuestionStatus = "approved"
	QuestionStatusRejected QuestionStatus = "rejected"
)

// Question is a question bank entry. Answer and Alternatives are stored raw.
type Question struct {
	ID           int64          `json:"id"`
	Kind         QuestionKind   `json:"kind"`
	Prompt       string         `json:"prompt"`
	QuoteText    *string        `json:"quote_text,omitempty"`
	ImagePath    *string        `json:"image_path,omitempty"`
	Answer       string         `json:"answer"`
	Alternatives []string       `json:"alternatives"`
	Explanation  *string        `json:"explanation,omitempty"`
	Status       QuestionStatus `json:"status"`
	AuthorName   *string        `json:"author_name,omitempty"`
	Categories   []Category     `json:"categories"`
}

// Category groups questions by theme
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
