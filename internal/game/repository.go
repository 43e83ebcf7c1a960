package game

import (
	"context"
	"sync"

	"github.com/ostanin/quizpair/internal/domain"
)

// Repository is the durable store for pair games. Implementations must key
// games by id and support the secondary lookup "unfinished game by player".
// Lookups return (nil, nil) when nothing matches.
type Repository interface {
	Get(ctx context.Context, gameID string) (*domain.Game, error)
	// GetByPlayer returns the player's PendingSecondPlayer or Active game.
	GetByPlayer(ctx context.Context, playerID string) (*domain.Game, error)
	// FindPending returns the game currently waiting for a second player.
	FindPending(ctx context.Context) (*domain.Game, error)
	Create(ctx context.Context, g *domain.Game) error
	Update(ctx context.Context, g *domain.Game) error
	// CompareAndSwapStatus atomically moves the game from one status to
	// another, reporting whether the swap happened.
	CompareAndSwapStatus(ctx context.Context, gameID string, from, to domain.GameStatus) (bool, error)
}

// MemoryRepository keeps games in process memory. It is the default store
// when Postgres is not configured, and the store used by tests. Snapshots
// are cloned on the way in and out, so callers never share game state with
// the repository.
type MemoryRepository struct {
	mu    sync.RWMutex
	games map[string]*domain.Game
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{games: make(map[string]*domain.Game)}
}

func (r *MemoryRepository) Get(_ context.Context, gameID string) (*domain.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.games[gameID]
	if !ok {
		return nil, nil
	}
	return g.Clone(), nil
}

func (r *MemoryRepository) GetByPlayer(_ context.Context, playerID string) (*domain.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, g := range r.games {
		if g.Status != domain.StatusFinished && g.HasPlayer(playerID) {
			return g.Clone(), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) FindPending(_ context.Context) (*domain.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, g := range r.games {
		if g.Status == domain.StatusPendingSecondPlayer {
			return g.Clone(), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(_ context.Context, g *domain.Game) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.games[g.GameID] = g.Clone()
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, g *domain.Game) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.games[g.GameID] = g.Clone()
	return nil
}

func (r *MemoryRepository) CompareAndSwapStatus(_ context.Context, gameID string, from, to domain.GameStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[gameID]
	if !ok || g.Status != from {
		return false, nil
	}
	g.Status = to
	return true, nil
}
