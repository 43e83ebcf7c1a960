package game_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostanin/quizpair/internal/domain"
	"github.com/ostanin/quizpair/internal/errors"
	"github.com/ostanin/quizpair/internal/event"
	"github.com/ostanin/quizpair/internal/game"
)

func TestService_Connect_PairsPlayers(t *testing.T) {
	env := makeService(t)
	ctx := context.Background()

	first, err := env.svc.Connect(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingSecondPlayer, first.Status)
	require.Equal(t, [2]string{"x", ""}, first.Players)
	require.Empty(t, first.Questions, "questions are drawn only when the pair forms")

	second, err := env.svc.Connect(ctx, "y")
	require.NoError(t, err)
	require.Equal(t, first.GameID, second.GameID, "second player joins the waiting game")
	require.Equal(t, domain.StatusActive, second.Status)
	require.Equal(t, [2]string{"x", "y"}, second.Players)
	require.Len(t, second.Questions, domain.QuestionsPerGame)
	require.False(t, second.StartedAt.IsZero())

	// Both players see the same game with the same question sequence.
	forX, err := env.svc.FindCurrentGame(ctx, "x")
	require.NoError(t, err)
	forY, err := env.svc.FindCurrentGame(ctx, "y")
	require.NoError(t, err)
	require.Equal(t, forX.Questions, forY.Questions)
	require.Equal(t, second.GameID, forX.GameID)
	require.Equal(t, second.GameID, forY.GameID)
}

func TestService_Connect_AlreadyInGame(t *testing.T) {
	env := makeService(t)
	ctx := context.Background()

	_, err := env.svc.Connect(ctx, "x")
	require.NoError(t, err)

	_, err = env.svc.Connect(ctx, "x")
	require.True(t, errors.IsCode(err, errors.CodeFailedPrecondition), "waiting player cannot connect twice: %v", err)

	_, err = env.svc.Connect(ctx, "y")
	require.NoError(t, err)

	_, err = env.svc.Connect(ctx, "x")
	require.True(t, errors.IsCode(err, errors.CodeFailedPrecondition), "active player cannot connect again: %v", err)
	_, err = env.svc.Connect(ctx, "y")
	require.True(t, errors.IsCode(err, errors.CodeFailedPrecondition))
}

func TestService_Connect_InsufficientQuestions(t *testing.T) {
	env := makeService(t, func(c *game.Config) {
		c.Questions = drawerWith(questionSet()[:3])
	})
	ctx := context.Background()

	_, err := env.svc.Connect(ctx, "x")
	require.NoError(t, err)

	_, err = env.svc.Connect(ctx, "y")
	require.True(t, errors.IsCode(err, errors.CodeResourceExhausted), "pairing needs 5 published questions: %v", err)

	// The waiting player stays enqueued, the failed joiner does not.
	g, err := env.svc.FindCurrentGame(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingSecondPlayer, g.Status)
	_, err = env.svc.FindCurrentGame(ctx, "y")
	require.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestService_Connect_ConcurrentPairing(t *testing.T) {
	env := makeService(t)
	ctx := context.Background()

	const players = 20

	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.svc.Connect(ctx, id)
			assert.NoError(t, err)
		}(fmt.Sprintf("p%02d", i))
	}
	wg.Wait()

	// Every player ended up in exactly one game, every game got exactly 2
	// players, and nobody was paired twice.
	games := make(map[string][2]string)
	for i := 0; i < players; i++ {
		g, err := env.svc.FindCurrentGame(ctx, fmt.Sprintf("p%02d", i))
		require.NoError(t, err)
		require.Equal(t, domain.StatusActive, g.Status)
		games[g.GameID] = g.Players
	}
	require.Len(t, games, players/2)

	seen := make(map[string]bool)
	for _, pair := range games {
		require.NotEqual(t, pair[0], pair[1])
		for _, p := range pair {
			require.False(t, seen[p], "player %s paired into two games", p)
			seen[p] = true
		}
	}
	require.Len(t, seen, players)
}

func TestService_SubmitAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("scores correct and wrong answers in question order", func(t *testing.T) {
		env := makeService(t)
		g := pairUp(t, env, "x", "y")

		rec, err := env.svc.SubmitAnswer(ctx, game.SubmitAnswerRequest{PlayerID: "x", GameID: g.GameID, Text: "  A1 "})
		require.NoError(t, err)
		require.True(t, rec.Correct)
		require.Equal(t, 1, rec.ScoreDelta)
		require.Equal(t, "q1", rec.QuestionID)
		require.Equal(t, "A1", rec.Text)

		rec, err = env.svc.SubmitAnswer(ctx, game.SubmitAnswerRequest{PlayerID: "x", GameID: g.GameID, Text: "nonsense"})
		require.NoError(t, err)
		require.False(t, rec.Correct)
		require.Equal(t, 0, rec.ScoreDelta)
		require.Equal(t, "q2", rec.QuestionID, "second submission scores the second question")

		cur, err := env.svc.FindGame(ctx, g.GameID)
		require.NoError(t, err)
		require.Equal(t, 1, cur.Scores["x"])
		require.Equal(t, 0, cur.Scores["y"])
		require.Len(t, cur.Answers["x"], 2)
	})

	t.Run("rejects submissions beyond the last question", func(t *testing.T) {
		env := makeService(t)
		g := pairUp(t, env, "x", "y")
		answerAll(t, env, g.GameID, "x", true)

		_, err := env.svc.SubmitAnswer(ctx, game.SubmitAnswerRequest{PlayerID: "x", GameID: g.GameID, Text: "a1"})
		require.True(t, errors.IsCode(err, errors.CodeFailedPrecondition), "finished player must be rejected: %v", err)
	})

	t.Run("rejects unknown games and strangers", func(t *testing.T) {
		env := makeService(t)
		g := pairUp(t, env, "x", "y")

		_, err := env.svc.SubmitAnswer(ctx, game.SubmitAnswerRequest{PlayerID: "x", GameID: "missing", Text: "a1"})
		require.True(t, errors.IsCode(err, errors.CodeNotFound))

		_, err = env.svc.SubmitAnswer(ctx, game.SubmitAnswerRequest{PlayerID: "z", GameID: g.GameID, Text: "a1"})
		require.True(t, errors.IsCode(err, errors.CodeNotFound), "non-participant must not see the game: %v", err)
	})

	t.Run("rejects answers while waiting for an opponent", func(t *testing.T) {
		env := makeService(t)
		pending, err := env.svc.Connect(ctx, "x")
		require.NoError(t, err)

		_, err = env.svc.SubmitAnswer(ctx, game.SubmitAnswerRequest{PlayerID: "x", GameID: pending.GameID, Text: "a1"})
		require.True(t, errors.IsCode(err, errors.CodeNotFound))
	})
}

func TestService_Bonus(t *testing.T) {
	ctx := context.Background()

	t.Run("first to finish with a correct answer gets the single bonus", func(t *testing.T) {
		// X: 3 correct, finishes first. Y: 4 correct, finishes second.
		env := makeService(t)
		g := pairUp(t, env, "x", "y")

		for i, text := range []string{"a1", "a2", "a3", "wrong", "wrong"} {
			_, err := env.svc.SubmitAnswer(ctx, game.SubmitAnswerRequest{PlayerID: "x", GameID: g.GameID, Text: text})
			require.NoError(t, err, "x answer %d", i)
		}
		for i, text := range []string{"a1", "a2", "a3", "a4", "wrong"} {
			_, err := env.svc.SubmitAnswer(ctx, game.SubmitAnswerRequest{PlayerID: "y", GameID: g.GameID, Text: text})
			require.NoError(t, err, "y answer %d", i)
		}

		fin, err := env.svc.FindGame(ctx, g.GameID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusFinished, fin.Status)
		require.False(t, fin.FinishedAt.IsZero())
		require.Equal(t, "x", fin.BonusTo)
		require.Equal(t, 4, fin.Scores["x"], "3 correct + finish bonus")
		require.Equal(t, 4, fin.Scores["y"])

		env.bus.Stop()
		require.Equal(t, 1, env.finished.count(), "both-complete finalizes exactly once, without a timer")
	})

	t.Run("an all-wrong first finisher leaves the bonus for the opponent", func(t *testing.T) {
		env := makeService(t)
		g := pairUp(t, env, "x", "y")

		answerAll(t, env, g.GameID, "x", false)
		fin, err := env.svc.FindGame(ctx, g.GameID)
		require.NoError(t, err)
		require.Empty(t, fin.BonusTo)

		answerAll(t, env, g.GameID, "y", true)
		fin, err = env.svc.FindGame(ctx, g.GameID)
		require.NoError(t, err)
		require.Equal(t, "y", fin.BonusTo)
		require.Equal(t, 0, fin.Scores["x"])
		require.Equal(t, domain.QuestionsPerGame+1, fin.Scores["y"])
	})

	t.Run("policy without the correct-answer requirement", func(t *testing.T) {
		env := makeService(t, func(c *game.Config) {
			c.BonusNeedsCorrect = false
		})
		g := pairUp(t, env, "x", "y")

		answerAll(t, env, g.GameID, "x", false)
		answerAll(t, env, g.GameID, "y", true)

		fin, err := env.svc.FindGame(ctx, g.GameID)
		require.NoError(t, err)
		require.Equal(t, "x", fin.BonusTo, "first finisher keeps the bonus regardless of correctness")
		require.Equal(t, 1, fin.Scores["x"])
		require.Equal(t, domain.QuestionsPerGame, fin.Scores["y"])
	})
}

func TestService_GraceTimer(t *testing.T) {
	ctx := context.Background()

	t.Run("expiry force-completes the lagging player", func(t *testing.T) {
		env := makeService(t, func(c *game.Config) {
			c.Grace = 30 * time.Millisecond
		})
		g := pairUp(t, env, "x", "y")

		answerAll(t, env, g.GameID, "x", true)

		require.Eventually(t, func() bool {
			fin, err := env.repo.Get(ctx, g.GameID)
			return err == nil && fin != nil && fin.Status == domain.StatusFinished
		}, time.Second, 5*time.Millisecond, "game must be finalized after the grace period")

		fin, err := env.svc.FindGame(ctx, g.GameID)
		require.NoError(t, err)
		require.Equal(t, domain.QuestionsPerGame+1, fin.Scores["x"], "5 correct + bonus")
		require.Equal(t, 0, fin.Scores["y"])
		require.Len(t, fin.Answers["y"], domain.QuestionsPerGame, "unanswered questions become blank records")
		for _, a := range fin.Answers["y"] {
			require.Empty(t, a.Text)
			require.False(t, a.Correct)
			require.Zero(t, a.ScoreDelta)
		}
		env.bus.Stop()
		require.Equal(t, 1, env.finished.count())

		_, err = env.svc.SubmitAnswer(ctx, game.SubmitAnswerRequest{PlayerID: "y", GameID: g.GameID, Text: "a1"})
		require.True(t, errors.IsCode(err, errors.CodeNotFound), "finished game accepts no answers: %v", err)
	})

	t.Run("second player finishing cancels the timer", func(t *testing.T) {
		env := makeService(t, func(c *game.Config) {
			c.Grace = 150 * time.Millisecond
		})
		g := pairUp(t, env, "x", "y")

		answerAll(t, env, g.GameID, "x", true)
		answerAll(t, env, g.GameID, "y", true)

		// Wait past the original deadline: the cancelled timer must not
		// finalize a second time or blank anything.
		time.Sleep(300 * time.Millisecond)

		fin, err := env.svc.FindGame(ctx, g.GameID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusFinished, fin.Status)
		for _, a := range fin.Answers["y"] {
			require.NotEmpty(t, a.Text, "real answers survive")
		}
		env.bus.Stop()
		require.Equal(t, 1, env.finished.count(), "exactly one finalization")
	})
}

func TestService_LazyFinalization(t *testing.T) {
	ctx := context.Background()

	t.Run("an overdue game is settled by the next read", func(t *testing.T) {
		clock := newFakeClock()
		env := makeService(t, func(c *game.Config) {
			c.Now = clock.Now
			c.Grace = time.Hour // the real timer never fires during the test
		})
		g := pairUp(t, env, "x", "y")
		answerAll(t, env, g.GameID, "x", true)

		clock.Advance(2 * time.Hour)

		fin, err := env.svc.FindGame(ctx, g.GameID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusFinished, fin.Status)
		require.Len(t, fin.Answers["y"], domain.QuestionsPerGame)
		env.bus.Stop()
		require.Equal(t, 1, env.finished.count())
	})

	t.Run("an overdue game stops being the player's current game", func(t *testing.T) {
		clock := newFakeClock()
		env := makeService(t, func(c *game.Config) {
			c.Now = clock.Now
			c.Grace = time.Hour
		})
		g := pairUp(t, env, "x", "y")
		answerAll(t, env, g.GameID, "x", true)

		clock.Advance(2 * time.Hour)

		_, err := env.svc.FindCurrentGame(ctx, "y")
		require.True(t, errors.IsCode(err, errors.CodeNotFound))

		// And the players can pair again afterwards.
		next, err := env.svc.Connect(ctx, "y")
		require.NoError(t, err)
		require.NotEqual(t, g.GameID, next.GameID)
	})
}

func TestService_FinishedGameIsImmutable(t *testing.T) {
	env := makeService(t)
	ctx := context.Background()

	g := pairUp(t, env, "x", "y")
	answerAll(t, env, g.GameID, "x", true)
	answerAll(t, env, g.GameID, "y", false)

	first, err := env.svc.FindGame(ctx, g.GameID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinished, first.Status)

	second, err := env.svc.FindGame(ctx, g.GameID)
	require.NoError(t, err)
	require.Equal(t, first, second, "re-reading a finished game observes no change")
	require.Equal(t, first.Questions, second.Questions, "question sequence is fixed at creation")
	env.bus.Stop()
	require.Equal(t, 1, env.finished.count())
}

func TestService_FindCurrentGame_NoGame(t *testing.T) {
	env := makeService(t)

	_, err := env.svc.FindCurrentGame(context.Background(), "nobody")
	require.True(t, errors.IsCode(err, errors.CodeNotFound))
}

// --- helpers ---

type testEnv struct {
	svc      *game.Service
	repo     *game.MemoryRepository
	bus      *event.Bus
	finished *eventLog
}

func makeService(t *testing.T, opts ...func(*game.Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		repo:     game.NewMemoryRepository(),
		bus:      event.NewBus(event.WithPoolSize(16)),
		finished: &eventLog{},
	}

	env.bus.Subscribe(domain.EventNameGameFinished, func(ctx context.Context, e event.Event) error {
		env.finished.add(e.(domain.EventGameFinished))
		return nil
	})

	c := game.Config{
		Repo:              env.repo,
		Questions:         drawerWith(questionSet()),
		EventBus:          env.bus,
		BonusNeedsCorrect: true,
	}
	for _, opt := range opts {
		opt(&c)
	}

	env.svc = game.NewService(c)
	t.Cleanup(func() {
		env.svc.Stop()
		env.bus.Stop()
	})
	return env
}

func pairUp(t *testing.T, env *testEnv, first, second string) *domain.Game {
	t.Helper()

	_, err := env.svc.Connect(context.Background(), first)
	require.NoError(t, err)
	g, err := env.svc.Connect(context.Background(), second)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, g.Status)
	return g
}

func answerAll(t *testing.T, env *testEnv, gameID, player string, correctly bool) {
	t.Helper()

	for i := 1; i <= domain.QuestionsPerGame; i++ {
		text := "wrong"
		if correctly {
			text = fmt.Sprintf("a%d", i)
		}
		_, err := env.svc.SubmitAnswer(context.Background(), game.SubmitAnswerRequest{
			PlayerID: player,
			GameID:   gameID,
			Text:     text,
		})
		require.NoError(t, err)
	}
}

func questionSet() []domain.Question {
	qs := make([]domain.Question, domain.QuestionsPerGame)
	for i := range qs {
		qs[i] = domain.Question{
			QuestionID: fmt.Sprintf("q%d", i+1),
			Body:       fmt.Sprintf("question %d", i+1),
			Answers:    []string{fmt.Sprintf("a%d", i+1)},
			Published:  true,
		}
	}
	return qs
}

type drawerStub []domain.Question

func drawerWith(qs []domain.Question) drawerStub { return drawerStub(qs) }

func (d drawerStub) Draw(_ context.Context, n int) ([]domain.Question, error) {
	if len(d) < n {
		return nil, errors.New(errors.CodeResourceExhausted,
			errors.WithMessagef("only %d questions published, %d needed", len(d), n))
	}
	return append([]domain.Question(nil), d[:n]...), nil
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.EventGameFinished
}

func (l *eventLog) add(e domain.EventGameFinished) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
