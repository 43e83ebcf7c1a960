package question

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ostanin/quizpair/internal/domain"
	"github.com/ostanin/quizpair/internal/errors"
)

const (
	minBodyLen = 10
	maxBodyLen = 500
)

// Filter narrows question listings.
type Filter struct {
	// Published filters by publication state when non-nil.
	Published *bool
	// BodySearch is a case-insensitive substring match on the body.
	BodySearch string
}

// Repository is the question bank store. Get returns (nil, nil) when the
// question does not exist.
type Repository interface {
	Get(ctx context.Context, questionID string) (*domain.Question, error)
	Create(ctx context.Context, q *domain.Question) error
	Update(ctx context.Context, q *domain.Question) error
	Delete(ctx context.Context, questionID string) (bool, error)
	List(ctx context.Context, f Filter, p domain.Page) ([]domain.Question, int, error)
	// DrawRandom returns up to n random published questions.
	DrawRandom(ctx context.Context, n int) ([]domain.Question, error)
}

type Config struct {
	Repo Repository
	Now  func() time.Time
}

// Service is the question bank: admin CRUD on the write side, random draws
// of published questions for the game engine on the read side.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		repo: c.Repo,
		now:  c.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type CreateRequest struct {
	Body    string
	Answers []string
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Question, error) {
	if err := validateBody(req.Body); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("question: generate question ID: %w", err))
	}

	now := s.now()
	q := &domain.Question{
		QuestionID: id.String(),
		Body:       strings.TrimSpace(req.Body),
		Answers:    trimAnswers(req.Answers),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, q); err != nil {
		return nil, errors.Internal(fmt.Errorf("question: create: %w", err))
	}
	return q, nil
}

type UpdateRequest struct {
	QuestionID string
	Body       string
	Answers    []string
}

func (s *Service) Update(ctx context.Context, req UpdateRequest) (*domain.Question, error) {
	if err := validateBody(req.Body); err != nil {
		return nil, err
	}

	q, err := s.repo.Get(ctx, req.QuestionID)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("question: load: %w", err))
	}
	if q == nil {
		return nil, errors.NotFound("question not found: %s", req.QuestionID)
	}

	answers := trimAnswers(req.Answers)
	if q.Published && len(answers) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("a published question must keep at least one accepted answer"))
	}

	q.Body = strings.TrimSpace(req.Body)
	q.Answers = answers
	q.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, q); err != nil {
		return nil, errors.Internal(fmt.Errorf("question: update: %w", err))
	}
	return q, nil
}

func (s *Service) Delete(ctx context.Context, questionID string) error {
	ok, err := s.repo.Delete(ctx, questionID)
	if err != nil {
		return errors.Internal(fmt.Errorf("question: delete: %w", err))
	}
	if !ok {
		return errors.NotFound("question not found: %s", questionID)
	}
	return nil
}

// SetPublished flips a question's publication state. Publishing requires at
// least one accepted answer.
func (s *Service) SetPublished(ctx context.Context, questionID string, published bool) error {
	q, err := s.repo.Get(ctx, questionID)
	if err != nil {
		return errors.Internal(fmt.Errorf("question: load: %w", err))
	}
	if q == nil {
		return errors.NotFound("question not found: %s", questionID)
	}

	if published && len(q.Answers) == 0 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question %s has no accepted answers, cannot publish", questionID))
	}

	q.Published = published
	q.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, q); err != nil {
		return errors.Internal(fmt.Errorf("question: update: %w", err))
	}
	return nil
}

type ListRequest struct {
	Filter Filter
	Page   domain.Page
}

func (s *Service) List(ctx context.Context, req ListRequest) (*domain.Paginated[domain.Question], error) {
	page := req.Page.Normalize()

	items, total, err := s.repo.List(ctx, req.Filter, page)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("question: list: %w", err))
	}

	return &domain.Paginated[domain.Question]{
		TotalCount: total,
		Page:       page.Number,
		PageSize:   page.Size,
		Items:      items,
	}, nil
}

// Draw returns n random published questions for a new game, failing when the
// published pool is too small.
func (s *Service) Draw(ctx context.Context, n int) ([]domain.Question, error) {
	qs, err := s.repo.DrawRandom(ctx, n)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("question: draw: %w", err))
	}
	if len(qs) < n {
		return nil, errors.New(errors.CodeResourceExhausted,
			errors.WithMessagef("only %d questions published, %d needed", len(qs), n))
	}
	return qs, nil
}

func validateBody(body string) error {
	n := len(strings.TrimSpace(body))
	if n < minBodyLen || n > maxBodyLen {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question body must be between %d and %d characters", minBodyLen, maxBodyLen))
	}
	return nil
}

func trimAnswers(answers []string) []string {
	out := make([]string, 0, len(answers))
	for _, a := range answers {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
