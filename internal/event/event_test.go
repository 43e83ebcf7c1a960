package event_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ostanin/quizpair/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a subscriber only receives events it subscribed to": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("game.finished"),
						eventWithName("game.paired"),
					},
					subscribers: []subscriber{
						{name: "stats", subscribeTo: []string{"game.finished"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("game.finished")}, out.received["stats"])
			},
		},

		"repeated events are all delivered": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("game.finished"),
						eventWithName("game.finished"),
						eventWithName("game.finished"),
					},
					subscribers: []subscriber{
						{name: "stats", subscribeTo: []string{"game.finished"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["stats"], 3)
			},
		},

		"an event fans out to every subscriber": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("game.finished"),
					},
					subscribers: []subscriber{
						{name: "stats", subscribeTo: []string{"game.finished"}},
						{name: "notifier", subscribeTo: []string{"game.finished", "game.paired"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("game.finished")}, out.received["stats"])
				assert.ElementsMatch(t, []event.Event{eventWithName("game.finished")}, out.received["notifier"])
			},
		},

		"mixed events reach the right subscribers": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("game.paired"),
						eventWithName("game.finished"),
						eventWithName("game.paired"),
					},
					subscribers: []subscriber{
						{name: "stats", subscribeTo: []string{"game.finished"}},
						{name: "notifier", subscribeTo: []string{"game.finished", "game.paired"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("game.finished")}, out.received["stats"])
				assert.ElementsMatch(t, []event.Event{
					eventWithName("game.paired"),
					eventWithName("game.paired"),
					eventWithName("game.finished"),
				}, out.received["notifier"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			mu := sync.Mutex{}
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus(event.WithPoolSize(4))
			for _, s := range in.subscribers {
				s := s
				for _, e := range s.subscribeTo {
					b.Subscribe(e, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						out.received[s.name] = append(out.received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, out)
		})
	}
}

func TestBus_HandlerFailureDoesNotStopOthers(t *testing.T) {
	b := event.NewBus()

	var (
		mu    sync.Mutex
		calls []string
	)

	b.Subscribe("game.finished", func(ctx context.Context, e event.Event) error {
		return errors.New("boom")
	})
	b.Subscribe("game.finished", func(ctx context.Context, e event.Event) error {
		panic("handler panic")
	})
	b.Subscribe("game.finished", func(ctx context.Context, e event.Event) error {
		mu.Lock()
		calls = append(calls, e.Name())
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), eventWithName("game.finished"))
	b.Stop()

	assert.Equal(t, []string{"game.finished"}, calls)
}

type eventWithName string

func (e eventWithName) Name() string {
	return string(e)
}

type subscriber struct {
	name        string
	subscribeTo []string
}
