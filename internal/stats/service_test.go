package stats_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ostanin/quizpair/internal/domain"
	"github.com/ostanin/quizpair/internal/event"
	"github.com/ostanin/quizpair/internal/stats"
)

func TestService_RecordGame(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	err := s.RecordGame(ctx, finishedGame("g1", "x", "y", 6, 0))
	require.NoError(t, err)

	x, err := s.Get(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, 1, x.Games)
	require.Equal(t, 1, x.Wins)
	require.Equal(t, 0, x.Losses)
	require.Equal(t, 6, x.SumScore)
	require.Equal(t, "6", x.AvgScore.String())

	y, err := s.Get(ctx, "y")
	require.NoError(t, err)
	require.Equal(t, 1, y.Games)
	require.Equal(t, 1, y.Losses)
	require.Equal(t, 0, y.SumScore)

	// A second game moves the average: (6+3)/2 = 4.5.
	err = s.RecordGame(ctx, finishedGame("g2", "x", "z", 3, 3))
	require.NoError(t, err)

	x, err = s.Get(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, 2, x.Games)
	require.Equal(t, 1, x.Wins)
	require.Equal(t, 1, x.Draws)
	require.Equal(t, "4.5", x.AvgScore.String())
}

func TestService_RecordGame_DuplicateDelivery(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	e := finishedGame("g1", "x", "y", 4, 2)
	require.NoError(t, s.RecordGame(ctx, e))
	require.NoError(t, s.RecordGame(ctx, e), "re-delivery must be a no-op")

	x, err := s.Get(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, 1, x.Games)
	require.Equal(t, 4, x.SumScore)
}

func TestService_RecordGame_RejectsUnfinished(t *testing.T) {
	s := makeService(t)

	e := finishedGame("g1", "x", "y", 1, 0)
	e.Game.Status = domain.StatusActive
	require.Error(t, s.RecordGame(context.Background(), e))
}

func TestService_Get_UnknownPlayer(t *testing.T) {
	s := makeService(t)

	st, err := s.Get(context.Background(), "nobody")
	require.NoError(t, err)
	require.Equal(t, 0, st.Games)
	require.True(t, st.AvgScore.IsZero())
}

func TestService_Top(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	require.NoError(t, s.RecordGame(ctx, finishedGame("g1", "a", "b", 6, 1)))
	require.NoError(t, s.RecordGame(ctx, finishedGame("g2", "c", "d", 4, 3)))

	top, err := s.Top(ctx, stats.TopRequest{Page: domain.Page{Number: 1, Size: 2}})
	require.NoError(t, err)
	require.Equal(t, 4, top.TotalCount)
	require.Len(t, top.Items, 2)
	require.Equal(t, "a", top.Items[0].PlayerID)
	require.Equal(t, "c", top.Items[1].PlayerID)

	rest, err := s.Top(ctx, stats.TopRequest{Page: domain.Page{Number: 2, Size: 2}})
	require.NoError(t, err)
	require.Len(t, rest.Items, 2)
	require.Equal(t, "b", rest.Items[1].PlayerID, "lowest average comes last")
}

func TestService_SubscribesToGameFinished(t *testing.T) {
	eb := event.NewBus()
	s := makeService(t, withEventBus(eb))

	eb.Publish(context.Background(), domain.EventGameFinished{Game: finishedGame("g1", "x", "y", 5, 2).Game})
	eb.Stop()

	x, err := s.Get(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, 1, x.Games)
	require.Equal(t, 5, x.SumScore)
}

func makeService(t *testing.T, opts ...options) *stats.Service {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := stats.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
		Prefix:   "quizpair:stats",
	}

	for _, opt := range opts {
		opt(&c)
	}

	return stats.NewService(c)
}

type options func(c *stats.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *stats.Config) {
		c.EventBus = eb
	}
}

func finishedGame(id, p1, p2 string, s1, s2 int) domain.EventGameFinished {
	return domain.EventGameFinished{
		Game: domain.Game{
			GameID:     id,
			Status:     domain.StatusFinished,
			Players:    [2]string{p1, p2},
			Scores:     map[string]int{p1: s1, p2: s2},
			FinishedAt: time.Now(),
		},
	}
}
