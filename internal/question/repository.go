package question

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/ostanin/quizpair/internal/domain"
)

// MemoryRepository keeps the question bank in process memory. Used when
// Postgres is not configured, and by tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	questions map[string]domain.Question
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{questions: make(map[string]domain.Question)}
}

func (r *MemoryRepository) Get(_ context.Context, questionID string) (*domain.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.questions[questionID]
	if !ok {
		return nil, nil
	}
	q.Answers = append([]string(nil), q.Answers...)
	return &q, nil
}

func (r *MemoryRepository) Create(_ context.Context, q *domain.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.questions[q.QuestionID] = *q
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, q *domain.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.questions[q.QuestionID] = *q
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, questionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.questions[questionID]; !ok {
		return false, nil
	}
	delete(r.questions, questionID)
	return true, nil
}

func (r *MemoryRepository) List(_ context.Context, f Filter, p domain.Page) ([]domain.Question, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Question, 0, len(r.questions))
	for _, q := range r.questions {
		if f.Published != nil && q.Published != *f.Published {
			continue
		}
		if f.BodySearch != "" && !strings.Contains(strings.ToLower(q.Body), strings.ToLower(f.BodySearch)) {
			continue
		}
		matched = append(matched, q)
	}

	// Newest first, matching the Postgres default ordering.
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	lo := p.Offset()
	if lo > total {
		lo = total
	}
	hi := lo + p.Size
	if hi > total {
		hi = total
	}
	return matched[lo:hi], total, nil
}

func (r *MemoryRepository) DrawRandom(_ context.Context, n int) ([]domain.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	published := make([]domain.Question, 0, len(r.questions))
	for _, q := range r.questions {
		if q.Published {
			published = append(published, q)
		}
	}

	rand.Shuffle(len(published), func(i, j int) {
		published[i], published[j] = published[j], published[i]
	})

	if len(published) > n {
		published = published[:n]
	}
	return published, nil
}
