package game

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ostanin/quizpair/internal/domain"
	"github.com/ostanin/quizpair/internal/errors"
	"github.com/ostanin/quizpair/internal/event"
)

const defaultGrace = 10 * time.Second

// QuestionDrawer supplies the fixed question sequence for a new game.
type QuestionDrawer interface {
	// Draw returns n random published questions, without replacement.
	Draw(ctx context.Context, n int) ([]domain.Question, error)
}

type Config struct {
	Repo      Repository
	Questions QuestionDrawer
	EventBus  *event.Bus

	// Grace is how long the second player gets to finish after the first
	// player completes all questions.
	Grace time.Duration

	// BonusNeedsCorrect requires at least one correct answer for the
	// first-to-finish bonus point.
	BonusNeedsCorrect bool

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// Service is the pair-game engine: it pairs waiting players, scores
// submitted answers and finalizes games.
//
// Operations on different games never contend. Within a game, pairing,
// submission, timer expiry and reads are serialized by a per-game lock;
// every critical section re-loads the game and re-checks its status after
// acquiring the lock, so a stale waiter can never mutate a finished game.
type Service struct {
	repo      Repository
	questions QuestionDrawer
	eb        *event.Bus

	grace             time.Duration
	bonusNeedsCorrect bool
	now               func() time.Time

	// mm serializes the enqueue-or-pair step of matchmaking so two
	// concurrent connects can never both claim the waiting player.
	mm sync.Mutex

	locks struct {
		sync.Mutex
		m map[string]*sync.Mutex
	}

	timers struct {
		sync.Mutex
		m map[string]*time.Timer
	}
}

func NewService(c Config) *Service {
	s := &Service{
		repo:              c.Repo,
		questions:         c.Questions,
		eb:                c.EventBus,
		grace:             c.Grace,
		bonusNeedsCorrect: c.BonusNeedsCorrect,
		now:               c.Now,
	}
	if s.grace <= 0 {
		s.grace = defaultGrace
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.locks.m = make(map[string]*sync.Mutex)
	s.timers.m = make(map[string]*time.Timer)
	return s
}

// Connect matches the player with a waiting opponent, or enqueues them as
// the waiting player. The returned game is PendingSecondPlayer when the
// player is first in, Active when a pair was formed.
func (s *Service) Connect(ctx context.Context, playerID string) (*domain.Game, error) {
	if playerID == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("player id is required"))
	}

	s.mm.Lock()
	defer s.mm.Unlock()

	cur, err := s.repo.GetByPlayer(ctx, playerID)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("game: lookup current game: %w", err))
	}
	if cur != nil && cur.Status == domain.StatusActive && s.graceExpired(cur) {
		// The previous game is overdue, settle it before rejecting.
		s.expire(cur.GameID)
		cur = nil
	}
	if cur != nil {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("player %s is already participating in an active pair", playerID))
	}

	pending, err := s.repo.FindPending(ctx)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("game: lookup pending game: %w", err))
	}

	if pending == nil {
		return s.enqueue(ctx, playerID)
	}
	return s.pair(ctx, pending, playerID)
}

func (s *Service) enqueue(ctx context.Context, playerID string) (*domain.Game, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("game: generate game ID: %w", err))
	}

	g := &domain.Game{
		GameID:    id.String(),
		Status:    domain.StatusPendingSecondPlayer,
		Players:   [2]string{playerID},
		Answers:   make(map[string][]domain.Answer),
		Scores:    map[string]int{playerID: 0},
		CreatedAt: s.now(),
	}

	if err := s.repo.Create(ctx, g); err != nil {
		return nil, errors.Internal(fmt.Errorf("game: create pending game: %w", err))
	}

	slog.InfoContext(ctx, "game: player enqueued", "game", g.GameID, "player", playerID)
	return g.Clone(), nil
}

func (s *Service) pair(ctx context.Context, g *domain.Game, playerID string) (*domain.Game, error) {
	qs, err := s.questions.Draw(ctx, domain.QuestionsPerGame)
	if err != nil {
		return nil, err
	}

	g.Players[1] = playerID
	g.Questions = qs
	g.Scores[playerID] = 0
	g.Status = domain.StatusActive
	g.StartedAt = s.now()

	if err := s.repo.Update(ctx, g); err != nil {
		return nil, errors.Internal(fmt.Errorf("game: activate game: %w", err))
	}

	metricGamesStarted.Inc()
	slog.InfoContext(ctx, "game: pair formed", "game", g.GameID, "first", g.Players[0], "second", g.Players[1])

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventGamePaired{Game: *g.Clone()})
	}
	return g.Clone(), nil
}

type SubmitAnswerRequest struct {
	PlayerID string
	GameID   string
	Text     string
}

// SubmitAnswer records the player's answer to their next unanswered
// question. Each player advances independently through the shared sequence.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*domain.Answer, error) {
	lk := s.gameLock(req.GameID)
	lk.Lock()
	defer lk.Unlock()

	g, err := s.repo.Get(ctx, req.GameID)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("game: load game: %w", err))
	}
	if g == nil || !g.HasPlayer(req.PlayerID) || g.Status != domain.StatusActive {
		return nil, errors.NotFound("no active pair: game=%s player=%s", req.GameID, req.PlayerID)
	}

	if s.graceExpired(g) {
		// Grace period ran out but the timer has not settled the game yet.
		if err := s.finishLocked(ctx, g, true); err != nil {
			return nil, err
		}
		return nil, errors.NotFound("no active pair: game=%s player=%s", req.GameID, req.PlayerID)
	}

	if g.Completed(req.PlayerID) {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("player %s has already answered all questions", req.PlayerID))
	}

	q := g.Questions[g.Progress(req.PlayerID)]
	correct := q.Accepts(req.Text)
	delta := 0
	if correct {
		delta = 1
	}

	rec := domain.Answer{
		QuestionID: q.QuestionID,
		Text:       strings.TrimSpace(req.Text),
		Correct:    correct,
		ScoreDelta: delta,
		AnsweredAt: s.now(),
	}
	g.Answers[req.PlayerID] = append(g.Answers[req.PlayerID], rec)
	g.Scores[req.PlayerID] += delta
	metricAnswers.WithLabelValues(boolLabel(correct)).Inc()

	if g.Completed(req.PlayerID) && g.BonusTo == "" {
		if !s.bonusNeedsCorrect || g.CorrectCount(req.PlayerID) > 0 {
			g.Scores[req.PlayerID]++
			g.BonusTo = req.PlayerID
		}
	}

	switch opp := g.Opponent(req.PlayerID); {
	case g.Completed(req.PlayerID) && g.Completed(opp):
		if err := s.finishLocked(ctx, g, false); err != nil {
			return nil, err
		}

	case g.Completed(req.PlayerID):
		// First player done: give the opponent a bounded amount of time.
		g.GraceDeadline = s.now().Add(s.grace)
		if err := s.repo.Update(ctx, g); err != nil {
			return nil, errors.Internal(fmt.Errorf("game: store answer: %w", err))
		}
		s.startTimer(g.GameID, s.grace)

	default:
		if err := s.repo.Update(ctx, g); err != nil {
			return nil, errors.Internal(fmt.Errorf("game: store answer: %w", err))
		}
	}

	return &rec, nil
}

// FindGame returns the game snapshot by id, settling it first if its grace
// period has already expired.
func (s *Service) FindGame(ctx context.Context, gameID string) (*domain.Game, error) {
	lk := s.gameLock(gameID)
	lk.Lock()
	defer lk.Unlock()

	g, err := s.repo.Get(ctx, gameID)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("game: load game: %w", err))
	}
	if g == nil {
		return nil, errors.NotFound("game not found: %s", gameID)
	}

	if g.Status == domain.StatusActive && s.graceExpired(g) {
		if err := s.finishLocked(ctx, g, true); err != nil {
			return nil, err
		}
	}
	return g.Clone(), nil
}

// FindCurrentGame returns the player's unfinished game.
func (s *Service) FindCurrentGame(ctx context.Context, playerID string) (*domain.Game, error) {
	g, err := s.repo.GetByPlayer(ctx, playerID)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("game: lookup current game: %w", err))
	}
	if g == nil {
		return nil, errors.NotFound("no active pair for player %s", playerID)
	}

	if g.Status == domain.StatusActive && s.graceExpired(g) {
		s.expire(g.GameID)
		return nil, errors.NotFound("no active pair for player %s", playerID)
	}
	return g.Clone(), nil
}

// Stop cancels all running grace timers. Games left Active are settled
// lazily on the next read.
func (s *Service) Stop() {
	s.timers.Lock()
	defer s.timers.Unlock()

	for id, t := range s.timers.m {
		t.Stop()
		delete(s.timers.m, id)
	}
}

// expire force-completes the game after its grace period. Runs as the timer
// callback and as the lazy fallback from reads.
func (s *Service) expire(gameID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lk := s.gameLock(gameID)
	lk.Lock()
	defer lk.Unlock()

	g, err := s.repo.Get(ctx, gameID)
	if err != nil {
		slog.ErrorContext(ctx, "game: load game for expiry failed", "game", gameID, "error", err)
		return
	}
	if g == nil || g.Status != domain.StatusActive || !s.graceExpired(g) {
		return
	}

	if err := s.finishLocked(ctx, g, true); err != nil {
		slog.ErrorContext(ctx, "game: expire game failed", "game", gameID, "error", err)
	}
}

// finishLocked finalizes the game exactly once. The caller must hold the
// game's lock. When forced, every unanswered question of a lagging player is
// recorded as a blank incorrect answer.
func (s *Service) finishLocked(ctx context.Context, g *domain.Game, forced bool) error {
	swapped, err := s.repo.CompareAndSwapStatus(ctx, g.GameID, domain.StatusActive, domain.StatusFinished)
	if err != nil {
		return errors.Internal(fmt.Errorf("game: finish game: %w", err))
	}
	if !swapped {
		// Already finalized by a concurrent path.
		return nil
	}

	s.cancelTimer(g.GameID)

	now := s.now()
	if forced {
		for _, p := range g.Players {
			for i := g.Progress(p); i < len(g.Questions); i++ {
				g.Answers[p] = append(g.Answers[p], domain.Answer{
					QuestionID: g.Questions[i].QuestionID,
					AnsweredAt: now,
				})
			}
		}
	}

	g.Status = domain.StatusFinished
	g.FinishedAt = now

	if err := s.repo.Update(ctx, g); err != nil {
		return errors.Internal(fmt.Errorf("game: store finished game: %w", err))
	}

	reason := "completed"
	if forced {
		reason = "expired"
	}
	metricGamesFinished.WithLabelValues(reason).Inc()
	slog.InfoContext(ctx, "game: finished", "game", g.GameID, "reason", reason,
		"score_first", g.Scores[g.Players[0]], "score_second", g.Scores[g.Players[1]])

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventGameFinished{Game: *g.Clone()})
	}

	s.dropLock(g.GameID)
	return nil
}

func (s *Service) graceExpired(g *domain.Game) bool {
	return !g.GraceDeadline.IsZero() && !s.now().Before(g.GraceDeadline)
}

func (s *Service) gameLock(gameID string) *sync.Mutex {
	s.locks.Lock()
	defer s.locks.Unlock()

	lk, ok := s.locks.m[gameID]
	if !ok {
		lk = new(sync.Mutex)
		s.locks.m[gameID] = lk
	}
	return lk
}

// dropLock frees the lock of a finished game. Waiters already blocked on the
// old mutex re-check the game status after acquiring it, so handing out a
// fresh mutex for the same id is harmless.
func (s *Service) dropLock(gameID string) {
	s.locks.Lock()
	defer s.locks.Unlock()
	delete(s.locks.m, gameID)
}

func (s *Service) startTimer(gameID string, d time.Duration) {
	s.timers.Lock()
	defer s.timers.Unlock()

	if _, ok := s.timers.m[gameID]; ok {
		return
	}
	s.timers.m[gameID] = time.AfterFunc(d, func() {
		s.expire(gameID)
	})
}

func (s *Service) cancelTimer(gameID string) {
	s.timers.Lock()
	defer s.timers.Unlock()

	if t, ok := s.timers.m[gameID]; ok {
		t.Stop()
		delete(s.timers.m, gameID)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
