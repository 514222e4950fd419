package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/quizrooms/go/internal/dbconfig"
	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Bank mirrors the YAML question bank file
type Bank struct {
	Questions []Question `yaml:"questions"`
}

type Question struct {
	Prompt       string   `yaml:"prompt"`
	Kind         string   `yaml:"kind"`
	Quote        string   `yaml:"quote"`
	Image        string   `yaml:"image"`
	Answer       string   `yaml:"answer"`
	Alternatives []string `yaml:"alternatives"`
	Explanation  string   `yaml:"explanation"`
	Categories   []string `yaml:"categories"`
	Status       string   `yaml:"status"`
}

func main() {
	path := pflag.StringP("file", "f", "go/internal/assets/questions.yaml", "question bank to import")
	pflag.Parse()

	// 1) Load the YAML bank
	data, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read bank: %v\n", err)
		os.Exit(1)
	}
	bank, err := parseBank(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse bank: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert and count
	var (
		total    = len(bank.Questions)
		inserted int
		skipped  int
		errs     int
	)

	for i, q := range bank.Questions {
		ok, err := insertQuestion(ctx, pool, q)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting question %d (%q): %v\n", i+1, q.Prompt, err)
			errs++
			continue
		}
		if ok {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Questions seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}

// parseBank decodes and normalizes a bank, rejecting entries that could never be answered.
func parseBank(data []byte) (*Bank, error) {
	var bank Bank
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("unmarshal YAML: %w", err)
	}

	var problems []string
	for i := range bank.Questions {
		q := &bank.Questions[i]
		if err := q.normalize(); err != nil {
			problems = append(problems, fmt.Sprintf("question %d: %v", i+1, err))
		}
	}
	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}
	return &bank, nil
}

func (q *Question) normalize() error {
	q.Prompt = strings.TrimSpace(q.Prompt)
	q.Answer = strings.TrimSpace(q.Answer)
	q.Quote = strings.TrimSpace(q.Quote)
	q.Image = strings.TrimSpace(q.Image)

	if q.Prompt == "" {
		return errors.New("prompt is required")
	}
	if q.Answer == "" {
		return errors.New("answer is required")
	}

	if q.Kind == "" {
		switch {
		case q.Quote != "":
			q.Kind = string(models.QuestionKindQuote)
		case q.Image != "":
			q.Kind = string(models.QuestionKindImage)
		default:
			q.Kind = string(models.QuestionKindPlain)
		}
	}
	switch models.QuestionKind(q.Kind) {
	case models.QuestionKindQuote:
		if q.Quote == "" {
			return errors.New("quote questions need a quote")
		}
	case models.QuestionKindImage:
		if q.Image == "" {
			return errors.New("image questions need an image")
		}
	case models.QuestionKindPlain:
	default:
		return fmt.Errorf("unknown kind %q", q.Kind)
	}

	if q.Status == "" {
		q.Status = string(models.QuestionStatusPending)
	}
	switch models.QuestionStatus(q.Status) {
	case models.QuestionStatusPending, models.QuestionStatusApproved, models.QuestionStatusRejected:
	default:
		return fmt.Errorf("unknown status %q", q.Status)
	}

	alts := q.Alternatives[:0]
	for _, a := range q.Alternatives {
		if a = strings.TrimSpace(a); a != "" {
			alts = append(alts, a)
		}
	}
	q.Alternatives = alts
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// insertQuestion adds q with its categories unless a question with the same
// prompt and answer already exists. It reports whether a row was inserted.
func insertQuestion(ctx context.Context, pool *pgxpool.Pool, q Question) (bool, error) {
	alternatives, err := json.Marshal(q.Alternatives)
	if err != nil {
		return false, err
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
        INSERT INTO questions (kind, prompt, quote_text, image_path, answer, alternatives, explanation, status)
        SELECT $1, $2, $3, $4, $5, $6, $7, $8
        WHERE NOT EXISTS (SELECT 1 FROM questions WHERE prompt = $2 AND answer = $5)
        RETURNING id
    `,
		q.Kind, q.Prompt, nullable(q.Quote), nullable(q.Image), q.Answer,
		alternatives, nullable(q.Explanation), q.Status,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, name := range q.Categories {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var categoryID int64
		if err := tx.QueryRow(ctx, `
            INSERT INTO categories (name) VALUES ($1)
            ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
            RETURNING id
        `, name).Scan(&categoryID); err != nil {
			return false, fmt.Errorf("category %q: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `
            INSERT INTO question_categories (question_id, category_id) VALUES ($1, $2)
            ON CONFLICT DO NOTHING
        `, id, categoryID); err != nil {
			return false, fmt.Errorf("link category %q: %w", name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
