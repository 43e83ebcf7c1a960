package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ostanin/quizpair/internal/domain"
)

const maxConcurrent = 100

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (a *API) PublishGamePaired(ctx context.Context, e domain.EventGamePaired) error {
	return a.notifyPlayers(ctx, &e.Game, e.Name())
}

func (a *API) PublishGameFinished(ctx context.Context, e domain.EventGameFinished) error {
	return a.notifyPlayers(ctx, &e.Game, e.Name())
}

func (a *API) notifyPlayers(ctx context.Context, g *domain.Game, event string) error {
	data := gameView(g)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, p := range g.Players {
		if p == "" {
			continue
		}
		p := p
		eg.Go(func() error {
			return a.publishNotification(ctx, p, event, data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, a.userChannel(user), b).Err()
}

func (a *API) userChannel(user string) string {
	return fmt.Sprintf("%s:user:%s", a.prefix, user)
}
