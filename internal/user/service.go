package user

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ostanin/quizpair/internal/domain"
	"github.com/ostanin/quizpair/internal/errors"
)

var (
	loginPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,10}$`)
	emailPattern = regexp.MustCompile(`^[\w.-]+@[\w-]+\.[\w.-]+$`)
)

var sortColumns = map[string]string{
	"login":     "login",
	"email":     "email",
	"createdAt": "created_at",
}

type Config struct {
	DB  *pgxpool.Pool
	Now func() time.Time
}

// Service manages registered accounts. Accounts are referenced by games and
// blog content through their ids only.
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
	Login string
	Email string
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.User, error) {
	login := strings.TrimSpace(req.Login)
	email := strings.TrimSpace(req.Email)

	if !loginPattern.MatchString(login) {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("login must be 3-10 characters of letters, digits, _ or -"))
	}
	if !emailPattern.MatchString(email) {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid email: %s", email))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("user: generate user ID: %w", err))
	}

	u := &domain.User{
		UserID:    id.String(),
		Login:     login,
		Email:     email,
		CreatedAt: s.now(),
	}

	const stmt = `
INSERT INTO users (user_id, login, email, created_at)
VALUES ($1, $2, $3, $4);`

	if _, err := s.db.Exec(ctx, stmt, u.UserID, u.Login, u.Email, u.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("login or email already taken"))
		}
		return nil, errors.Internal(fmt.Errorf("user: create: %w", err))
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, userID string) (*domain.User, error) {
	const stmt = `
SELECT user_id, login, email, created_at
FROM users
WHERE user_id = $1;`

	var u domain.User
	err := s.db.QueryRow(ctx, stmt, userID).Scan(&u.UserID, &u.Login, &u.Email, &u.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("user not found: %s", userID)
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("user: load: %w", err))
	}
	return &u, nil
}

func (s *Service) Delete(ctx context.Context, userID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE user_id = $1;`, userID)
	if err != nil {
		return errors.Internal(fmt.Errorf("user: delete: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("user not found: %s", userID)
	}
	return nil
}

type ListRequest struct {
	// SearchLoginTerm and SearchEmailTerm are case-insensitive substring
	// filters; a user matches when either term matches.
	SearchLoginTerm string
	SearchEmailTerm string
	Page            domain.Page
}

func (s *Service) List(ctx context.Context, req ListRequest) (*domain.Paginated[domain.User], error) {
	page := req.Page.Normalize()
	order, err := orderBy(page)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf(`
SELECT user_id, login, email, created_at
FROM users
WHERE ($1 = '' AND $2 = '')
   OR ($1 <> '' AND login ILIKE '%%' || $1 || '%%')
   OR ($2 <> '' AND email ILIKE '%%' || $2 || '%%')
ORDER BY %s
LIMIT $3 OFFSET $4;`, order)

	rows, err := s.db.Query(ctx, stmt, req.SearchLoginTerm, req.SearchEmailTerm, page.Size, page.Offset())
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("user: list: %w", err))
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.User, error) {
		var u domain.User
		err := row.Scan(&u.UserID, &u.Login, &u.Email, &u.CreatedAt)
		return u, err
	})
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("user: collect: %w", err))
	}

	const countStmt = `
SELECT COUNT(*)
FROM users
WHERE ($1 = '' AND $2 = '')
   OR ($1 <> '' AND login ILIKE '%' || $1 || '%')
   OR ($2 <> '' AND email ILIKE '%' || $2 || '%');`

	var total int
	if err := s.db.QueryRow(ctx, countStmt, req.SearchLoginTerm, req.SearchEmailTerm).Scan(&total); err != nil {
		return nil, errors.Internal(fmt.Errorf("user: count: %w", err))
	}

	return &domain.Paginated[domain.User]{
		TotalCount: total,
		Page:       page.Number,
		PageSize:   page.Size,
		Items:      items,
	}, nil
}

func orderBy(p domain.Page) (string, error) {
	col := "created_at"
	if p.SortBy != "" {
		c, ok := sortColumns[p.SortBy]
		if !ok {
			return "", errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("cannot sort users by %q", p.SortBy))
		}
		col = c
	}
	if p.SortDesc {
		return col + " DESC", nil
	}
	return col + " ASC", nil
}
