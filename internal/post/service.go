package post

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
	maxTitleLen      = 30
	maxShortDescrLen = 100
	maxContentLen    = 1000
)

var sortColumns = map[string]string{
	"title":     "title",
	"createdAt": "created_at",
}

type Config struct {
	DB  *pgxpool.Pool
	Now func() time.Time
}

// Service manages posts. Every post belongs to an existing blog.
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
	BlogID     string
	Title      string
	ShortDescr string
	Content    string
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Post, error) {
	if err := validate(req.Title, req.ShortDescr, req.Content); err != nil {
		return nil, err
	}

	var blogExists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blogs WHERE blog_id = $1);`, req.BlogID).Scan(&blogExists); err != nil {
		return nil, errors.Internal(fmt.Errorf("post: check blog: %w", err))
	}
	if !blogExists {
		return nil, errors.NotFound("blog not found: %s", req.BlogID)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("post: generate post ID: %w", err))
	}

	p := &domain.Post{
		PostID:     id.String(),
		BlogID:     req.BlogID,
		Title:      strings.TrimSpace(req.Title),
		ShortDescr: strings.TrimSpace(req.ShortDescr),
		Content:    strings.TrimSpace(req.Content),
		CreatedAt:  s.now(),
	}

	const stmt = `
INSERT INTO posts (post_id, blog_id, title, short_descr, content, created_at)
VALUES ($1, $2, $3, $4, $5, $6);`

	if _, err := s.db.Exec(ctx, stmt, p.PostID, p.BlogID, p.Title, p.ShortDescr, p.Content, p.CreatedAt); err != nil {
		return nil, errors.Internal(fmt.Errorf("post: create: %w", err))
	}
	return p, nil
}

type UpdateRequest struct {
	PostID     string
	Title      string
	ShortDescr string
	Content    string
}

func (s *Service) Update(ctx context.Context, req UpdateRequest) (*domain.Post, error) {
	if err := validate(req.Title, req.ShortDescr, req.Content); err != nil {
		return nil, err
	}

	const stmt = `
UPDATE posts
SET title = $2, short_descr = $3, content = $4
WHERE post_id = $1;`

	tag, err := s.db.Exec(ctx, stmt, req.PostID,
		strings.TrimSpace(req.Title), strings.TrimSpace(req.ShortDescr), strings.TrimSpace(req.Content))
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("post: update: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return nil, errors.NotFound("post not found: %s", req.PostID)
	}
	return s.Get(ctx, req.PostID)
}

func (s *Service) Get(ctx context.Context, postID string) (*domain.Post, error) {
	const stmt = `
SELECT post_id, blog_id, title, short_descr, content, created_at
FROM posts
WHERE post_id = $1;`

	var p domain.Post
	err := s.db.QueryRow(ctx, stmt, postID).
		Scan(&p.PostID, &p.BlogID, &p.Title, &p.ShortDescr, &p.Content, &p.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("post not found: %s", postID)
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("post: load: %w", err))
	}
	return &p, nil
}

func (s *Service) Delete(ctx context.Context, postID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM posts WHERE post_id = $1;`, postID)
	if err != nil {
		return errors.Internal(fmt.Errorf("post: delete: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("post not found: %s", postID)
	}
	return nil
}

type ListRequest struct {
	// BlogID narrows the listing to one blog when set.
	BlogID string
	Page   domain.Page
}

func (s *Service) List(ctx context.Context, req ListRequest) (*domain.Paginated[domain.Post], error) {
	page := req.Page.Normalize()
	order, err := orderBy(page)
	if err != nil {
		return nil, err
	}

	if req.BlogID != "" {
		var blogExists bool
		if err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM blogs WHERE blog_id = $1);`, req.BlogID).Scan(&blogExists); err != nil {
			return nil, errors.Internal(fmt.Errorf("post: check blog: %w", err))
		}
		if !blogExists {
			return nil, errors.NotFound("blog not found: %s", req.BlogID)
		}
	}

	stmt := fmt.Sprintf(`
SELECT post_id, blog_id, title, short_descr, content, created_at
FROM posts
WHERE $1 = '' OR blog_id = $1
ORDER BY %s
LIMIT $2 OFFSET $3;`, order)

	rows, err := s.db.Query(ctx, stmt, req.BlogID, page.Size, page.Offset())
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("post: list: %w", err))
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Post, error) {
		var p domain.Post
		err := row.Scan(&p.PostID, &p.BlogID, &p.Title, &p.ShortDescr, &p.Content, &p.CreatedAt)
		return p, err
	})
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("post: collect: %w", err))
	}

	var total int
	const countStmt = `SELECT COUNT(*) FROM posts WHERE $1 = '' OR blog_id = $1;`
	if err := s.db.QueryRow(ctx, countStmt, req.BlogID).Scan(&total); err != nil {
		return nil, errors.Internal(fmt.Errorf("post: count: %w", err))
	}

	return &domain.Paginated[domain.Post]{
		TotalCount: total,
		Page:       page.Number,
		PageSize:   page.Size,
		Items:      items,
	}, nil
}

func validate(title, shortDescr, content string) error {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > maxTitleLen {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("post title must be 1-%d characters", maxTitleLen))
	}
	if len(strings.TrimSpace(shortDescr)) > maxShortDescrLen {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("post short description must be at most %d characters", maxShortDescrLen))
	}
	if len(strings.TrimSpace(content)) > maxContentLen {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("post content must be at most %d characters", maxContentLen))
	}
	return nil
}

func orderBy(p domain.Page) (string, error) {
	col := "created_at"
	if p.SortBy != "" {
		c, ok := sortColumns[p.SortBy]
		if !ok {
			return "", errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("cannot sort posts by %q", p.SortBy))
		}
		col = c
	}
	if p.SortDesc {
		return col + " DESC", nil
	}
	return col + " ASC", nil
}
