package blog

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ostanin/quizpair/internal/domain"
	"github.com/ostanin/quizpair/internal/errors"
)

const (
	maxNameLen        = 15
	maxDescriptionLen = 500
	maxWebsiteURLLen  = 100
)

var sortColumns = map[string]string{
	"name":      "name",
	"createdAt": "created_at",
}

type Config struct {
	DB  *pgxpool.Pool
	Now func() time.Time
}

// Service manages blogs, the named collections posts belong to.
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
	Name        string
	Description string
	WebsiteURL  string
	OwnerID     string
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Blog, error) {
	if err := validate(req.Name, req.Description, req.WebsiteURL); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("blog: generate blog ID: %w", err))
	}

	b := &domain.Blog{
		BlogID:      id.String(),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		WebsiteURL:  strings.TrimSpace(req.WebsiteURL),
		OwnerID:     req.OwnerID,
		CreatedAt:   s.now(),
	}

	const stmt = `
INSERT INTO blogs (blog_id, name, description, website_url, owner_id, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6);`

	if _, err := s.db.Exec(ctx, stmt, b.BlogID, b.Name, b.Description, b.WebsiteURL, b.OwnerID, b.CreatedAt); err != nil {
		return nil, errors.Internal(fmt.Errorf("blog: create: %w", err))
	}
	return b, nil
}

type UpdateRequest struct {
	BlogID      string
	Name        string
	Description string
	WebsiteURL  string
}

func (s *Service) Update(ctx context.Context, req UpdateRequest) (*domain.Blog, error) {
	if err := validate(req.Name, req.Description, req.WebsiteURL); err != nil {
		return nil, err
	}

	const stmt = `
UPDATE blogs
SET name = $2, description = $3, website_url = $4
WHERE blog_id = $1;`

	tag, err := s.db.Exec(ctx, stmt, req.BlogID,
		strings.TrimSpace(req.Name), strings.TrimSpace(req.Description), strings.TrimSpace(req.WebsiteURL))
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("blog: update: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return nil, errors.NotFound("blog not found: %s", req.BlogID)
	}
	return s.Get(ctx, req.BlogID)
}

func (s *Service) Get(ctx context.Context, blogID string) (*domain.Blog, error) {
	const stmt = `
SELECT blog_id, name, description, website_url, COALESCE(owner_id, ''), created_at
FROM blogs
WHERE blog_id = $1;`

	var b domain.Blog
	err := s.db.QueryRow(ctx, stmt, blogID).
		Scan(&b.BlogID, &b.Name, &b.Description, &b.WebsiteURL, &b.OwnerID, &b.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("blog not found: %s", blogID)
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("blog: load: %w", err))
	}
	return &b, nil
}

func (s *Service) Delete(ctx context.Context, blogID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM blogs WHERE blog_id = $1;`, blogID)
	if err != nil {
		return errors.Internal(fmt.Errorf("blog: delete: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("blog not found: %s", blogID)
	}
	return nil
}

type ListRequest struct {
	// SearchNameTerm is a case-insensitive substring filter on the name.
	SearchNameTerm string
	Page           domain.Page
}

func (s *Service) List(ctx context.Context, req ListRequest) (*domain.Paginated[domain.Blog], error) {
	page := req.Page.Normalize()
	order, err := orderBy(page)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf(`
SELECT blog_id, name, description, website_url, COALESCE(owner_id, ''), created_at
FROM blogs
WHERE $1 = '' OR name ILIKE '%%' || $1 || '%%'
ORDER BY %s
LIMIT $2 OFFSET $3;`, order)

	rows, err := s.db.Query(ctx, stmt, req.SearchNameTerm, page.Size, page.Offset())
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("blog: list: %w", err))
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Blog, error) {
		var b domain.Blog
		err := row.Scan(&b.BlogID, &b.Name, &b.Description, &b.WebsiteURL, &b.OwnerID, &b.CreatedAt)
		return b, err
	})
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("blog: collect: %w", err))
	}

	var total int
	const countStmt = `SELECT COUNT(*) FROM blogs WHERE $1 = '' OR name ILIKE '%' || $1 || '%';`
	if err := s.db.QueryRow(ctx, countStmt, req.SearchNameTerm).Scan(&total); err != nil {
		return nil, errors.Internal(fmt.Errorf("blog: count: %w", err))
	}

	return &domain.Paginated[domain.Blog]{
		TotalCount: total,
		Page:       page.Number,
		PageSize:   page.Size,
		Items:      items,
	}, nil
}

func validate(name, description, websiteURL string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLen {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("blog name must be 1-%d characters", maxNameLen))
	}
	if len(strings.TrimSpace(description)) > maxDescriptionLen {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("blog description must be at most %d characters", maxDescriptionLen))
	}

	websiteURL = strings.TrimSpace(websiteURL)
	if len(websiteURL) > maxWebsiteURLLen {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("website URL must be at most %d characters", maxWebsiteURLLen))
	}
	if websiteURL != "" {
		u, err := url.Parse(websiteURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("website URL must be an absolute http(s) URL"))
		}
	}
	return nil
}

func orderBy(p domain.Page) (string, error) {
	col := "created_at"
	if p.SortBy != "" {
		c, ok := sortColumns[p.SortBy]
		if !ok {
			return "", errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("cannot sort blogs by %q", p.SortBy))
		}
		col = c
	}
	if p.SortDesc {
		return col + " DESC", nil
	}
	return col + " ASC", nil
}
