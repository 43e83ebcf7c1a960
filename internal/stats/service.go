package stats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ostanin/quizpair/internal/domain"
	"github.com/ostanin/quizpair/internal/errors"
	"github.com/ostanin/quizpair/internal/event"
)

// recordedTTL bounds how long the per-game dedupe marker lives. Duplicate
// game.finished deliveries arrive within seconds, a day is plenty.
const recordedTTL = 24 * time.Hour

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service keeps per-player aggregates over finished games and a ranking of
// players by average score. State lives in Redis: a hash per player and one
// sorted set for the ranking.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameGameFinished, func(ctx context.Context, e event.Event) error {
		return s.RecordGame(ctx, e.(domain.EventGameFinished))
	})

	return s
}

// RecordGame folds a finished game into both players' aggregates. Event
// delivery is at-least-once, so a per-game marker makes re-delivery a no-op.
func (s *Service) RecordGame(ctx context.Context, e domain.EventGameFinished) error {
	g := e.Game
	if g.Status != domain.StatusFinished {
		return fmt.Errorf("stats: game %s is not finished", g.GameID)
	}

	fresh, err := s.redis.SetNX(ctx, s.gameKey(g.GameID), 1, recordedTTL).Result()
	if err != nil {
		return fmt.Errorf("stats: mark game recorded: %w", err)
	}
	if !fresh {
		return nil
	}

	for _, p := range g.Players {
		if err := s.recordPlayer(ctx, &g, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordPlayer(ctx context.Context, g *domain.Game, playerID string) error {
	score, oppScore := g.Scores[playerID], g.Scores[g.Opponent(playerID)]

	outcome := "draws"
	switch {
	case score > oppScore:
		outcome = "wins"
	case score < oppScore:
		outcome = "losses"
	}

	key := s.playerKey(playerID)
	pipe := s.redis.TxPipeline()
	games := pipe.HIncrBy(ctx, key, "games", 1)
	sum := pipe.HIncrBy(ctx, key, "score", int64(score))
	pipe.HIncrBy(ctx, key, outcome, 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stats: update player %s: %w", playerID, err)
	}

	avg := avgScore(int(sum.Val()), int(games.Val()))
	if err := s.redis.ZAdd(ctx, s.topKey(), redis.Z{
		Score:  avg.InexactFloat64(),
		Member: playerID,
	}).Err(); err != nil {
		return fmt.Errorf("stats: update ranking for %s: %w", playerID, err)
	}
	return nil
}

// Get returns the player's aggregates; a player with no finished games gets
// all-zero stats.
func (s *Service) Get(ctx context.Context, playerID string) (*domain.PlayerStats, error) {
	fields, err := s.redis.HGetAll(ctx, s.playerKey(playerID)).Result()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("stats: load player %s: %w", playerID, err))
	}

	st := statsFromHash(playerID, fields)
	return &st, nil
}

type TopRequest struct {
	Page domain.Page
}

// Top returns players ordered by average score, best first.
func (s *Service) Top(ctx context.Context, req TopRequest) (*domain.Paginated[domain.PlayerStats], error) {
	page := req.Page.Normalize()

	total, err := s.redis.ZCard(ctx, s.topKey()).Result()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("stats: ranking size: %w", err))
	}

	start := int64(page.Offset())
	stop := start + int64(page.Size) - 1
	members, err := s.redis.ZRevRange(ctx, s.topKey(), start, stop).Result()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("stats: load ranking: %w", err))
	}

	items := make([]domain.PlayerStats, 0, len(members))
	for _, m := range members {
		st, err := s.Get(ctx, m)
		if err != nil {
			return nil, err
		}
		items = append(items, *st)
	}

	return &domain.Paginated[domain.PlayerStats]{
		TotalCount: int(total),
		Page:       page.Number,
		PageSize:   page.Size,
		Items:      items,
	}, nil
}

func statsFromHash(playerID string, fields map[string]string) domain.PlayerStats {
	atoi := func(k string) int {
		n, _ := strconv.Atoi(fields[k])
		return n
	}

	st := domain.PlayerStats{
		PlayerID: playerID,
		Games:    atoi("games"),
		Wins:     atoi("wins"),
		Losses:   atoi("losses"),
		Draws:    atoi("draws"),
		SumScore: atoi("score"),
	}
	st.AvgScore = avgScore(st.SumScore, st.Games)
	return st
}

func avgScore(sum, games int) decimal.Decimal {
	if games == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(sum)).
		DivRound(decimal.NewFromInt(int64(games)), 2)
}

func (s *Service) playerKey(playerID string) string {
	return fmt.Sprintf("%s:player:%s", s.prefix, playerID)
}

func (s *Service) topKey() string {
	return fmt.Sprintf("%s:top", s.prefix)
}

func (s *Service) gameKey(gameID string) string {
	return fmt.Sprintf("%s:game:%s", s.prefix, gameID)
}
