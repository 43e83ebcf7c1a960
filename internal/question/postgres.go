package question

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ostanin/quizpair/internal/domain"
)

// PostgresRepository stores the question bank in the quiz_questions table.
// Accepted answers are a JSONB array, read and written through pgx's
// built-in JSONB mapping.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, questionID string) (*domain.Question, error) {
	const stmt = `
SELECT question_id, body, answers, published, created_at, updated_at
FROM quiz_questions
WHERE question_id = $1;`

	var q domain.Question
	err := r.db.QueryRow(ctx, stmt, questionID).
		Scan(&q.QuestionID, &q.Body, &q.Answers, &q.Published, &q.CreatedAt, &q.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select question: %w", err)
	}
	return &q, nil
}

func (r *PostgresRepository) Create(ctx context.Context, q *domain.Question) error {
	const stmt = `
INSERT INTO quiz_questions (question_id, body, answers, published, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6);`

	_, err := r.db.Exec(ctx, stmt, q.QuestionID, q.Body, q.Answers, q.Published, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, q *domain.Question) error {
	const stmt = `
UPDATE quiz_questions
SET body = $2, answers = $3, published = $4, updated_at = $5
WHERE question_id = $1;`

	_, err := r.db.Exec(ctx, stmt, q.QuestionID, q.Body, q.Answers, q.Published, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, questionID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM quiz_questions WHERE question_id = $1;`, questionID)
	if err != nil {
		return false, fmt.Errorf("delete question: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) List(ctx context.Context, f Filter, p domain.Page) ([]domain.Question, int, error) {
	const stmt = `
SELECT question_id, body, answers, published, created_at, updated_at
FROM quiz_questions
WHERE ($1::boolean IS NULL OR published = $1)
  AND ($2 = '' OR body ILIKE '%' || $2 || '%')
ORDER BY created_at DESC
LIMIT $3 OFFSET $4;`

	rows, err := r.db.Query(ctx, stmt, f.Published, f.BodySearch, p.Size, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("select questions: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		err := row.Scan(&q.QuestionID, &q.Body, &q.Answers, &q.Published, &q.CreatedAt, &q.UpdatedAt)
		return q, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("collect questions: %w", err)
	}

	const countStmt = `
SELECT COUNT(*)
FROM quiz_questions
WHERE ($1::boolean IS NULL OR published = $1)
  AND ($2 = '' OR body ILIKE '%' || $2 || '%');`

	var total int
	if err := r.db.QueryRow(ctx, countStmt, f.Published, f.BodySearch).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}

	return items, total, nil
}

func (r *PostgresRepository) DrawRandom(ctx context.Context, n int) ([]domain.Question, error) {
	const stmt = `
SELECT question_id, body, answers, published, created_at, updated_at
FROM quiz_questions
WHERE published
ORDER BY random()
LIMIT $1;`

	rows, err := r.db.Query(ctx, stmt, n)
	if err != nil {
		return nil, fmt.Errorf("draw questions: %w", err)
	}

	qs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		err := row.Scan(&q.QuestionID, &q.Body, &q.Answers, &q.Published, &q.CreatedAt, &q.UpdatedAt)
		return q, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect drawn questions: %w", err)
	}
	return qs, nil
}
