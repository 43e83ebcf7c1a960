package comment

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ostanin/quizpair/internal/domain"
	"github.com/ostanin/quizpair/internal/errors"
)

const (
	minContentLen = 20
	maxContentLen = 300
)

type Config struct {
	DB  *pgxpool.Pool
	Now func() time.Time
}

// Service manages comments under posts. Only the author may edit or delete
// their comment.
type Service struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		db:  c.DB,
		now: c.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type CreateRequest struct {
	PostID  string
	UserID  string
	Content string
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Comment, error) {
	if err := validateContent(req.Content); err != nil {
		return nil, err
	}

	var postExists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE post_id = $1);`, req.PostID).Scan(&postExists); err != nil {
		return nil, errors.Internal(fmt.Errorf("comment: check post: %w", err))
	}
	if !postExists {
		return nil, errors.NotFound("post not found: %s", req.PostID)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("comment: generate comment ID: %w", err))
	}

	c := &domain.Comment{
		CommentID: id.String(),
		PostID:    req.PostID,
		UserID:    req.UserID,
		Content:   strings.TrimSpace(req.Content),
		CreatedAt: s.now(),
	}

	const stmt = `
INSERT INTO comments (comment_id, post_id, user_id, content, created_at)
VALUES ($1, $2, $3, $4, $5);`

	if _, err := s.db.Exec(ctx, stmt, c.CommentID, c.PostID, c.UserID, c.Content, c.CreatedAt); err != nil {
		return nil, errors.Internal(fmt.Errorf("comment: create: %w", err))
	}
	return c, nil
}

type UpdateRequest struct {
	CommentID string
	UserID    string
	Content   string
}

func (s *Service) Update(ctx context.Context, req UpdateRequest) (*domain.Comment, error) {
	if err := validateContent(req.Content); err != nil {
		return nil, err
	}

	c, err := s.Get(ctx, req.CommentID)
	if err != nil {
		return nil, err
	}
	if c.UserID != req.UserID {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("comment %s belongs to another user", req.CommentID))
	}

	c.Content = strings.TrimSpace(req.Content)
	if _, err := s.db.Exec(ctx,
		`UPDATE comments SET content = $2 WHERE comment_id = $1;`, c.CommentID, c.Content); err != nil {
		return nil, errors.Internal(fmt.Errorf("comment: update: %w", err))
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, commentID string) (*domain.Comment, error) {
	const stmt = `
SELECT comment_id, post_id, user_id, content, created_at
FROM comments
WHERE comment_id = $1;`

	var c domain.Comment
	err := s.db.QueryRow(ctx, stmt, commentID).
		Scan(&c.CommentID, &c.PostID, &c.UserID, &c.Content, &c.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("comment not found: %s", commentID)
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("comment: load: %w", err))
	}
	return &c, nil
}

func (s *Service) Delete(ctx context.Context, commentID, userID string) error {
	c, err := s.Get(ctx, commentID)
	if err != nil {
		return err
	}
	if c.UserID != userID {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("comment %s belongs to another user", commentID))
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM comments WHERE comment_id = $1;`, commentID); err != nil {
		return errors.Internal(fmt.Errorf("comment: delete: %w", err))
	}
	return nil
}

type ListRequest struct {
	PostID string
	Page   domain.Page
}

// ListByPost returns a post's comments, newest first.
func (s *Service) ListByPost(ctx context.Context, req ListRequest) (*domain.Paginated[domain.Comment], error) {
	page := req.Page.Normalize()

	var postExists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE post_id = $1);`, req.PostID).Scan(&postExists); err != nil {
		return nil, errors.Internal(fmt.Errorf("comment: check post: %w", err))
	}
	if !postExists {
		return nil, errors.NotFound("post not found: %s", req.PostID)
	}

	const stmt = `
SELECT comment_id, post_id, user_id, content, created_at
FROM comments
WHERE post_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;`

	rows, err := s.db.Query(ctx, stmt, req.PostID, page.Size, page.Offset())
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("comment: list: %w", err))
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Comment, error) {
		var c domain.Comment
		err := row.Scan(&c.CommentID, &c.PostID, &c.UserID, &c.Content, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("comment: collect: %w", err))
	}

	var total int
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM comments WHERE post_id = $1;`, req.PostID).Scan(&total); err != nil {
		return nil, errors.Internal(fmt.Errorf("comment: count: %w", err))
	}

	return &domain.Paginated[domain.Comment]{
		TotalCount: total,
		Page:       page.Number,
		PageSize:   page.Size,
		Items:      items,
	}, nil
}

func validateContent(content string) error {
	n := len(strings.TrimSpace(content))
	if n < minContentLen || n > maxContentLen {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("comment content must be between %d and %d characters", minContentLen, maxContentLen))
	}
	return nil
}
