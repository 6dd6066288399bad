package events

import (
	"context"

	"credpost/internal/core/event"
)

type Handler func(ctx context.Context, ev event.Event)

type Subscription interface {
	ID() string
	Unsubscribe()
}

// Bus delivers events to subscribers in publish order. Subscribing with no
// kinds receives every kind.
type Bus interface {
	Publish(ctx context.Context, ev event.Event) error
	Subscribe(h Handler, kinds ...event.Kind) (Subscription, error)
	Close() error
}

// Stream is a live log subscription on the chain side.
type Stream interface {
	Unsubscribe()
	Err() <-chan error
}

// Source reads contract events from the chain.
type Source interface {
	LatestBlock(ctx context.Context) (uint64, error)
	FilterEvents(ctx context.Context, from, to uint64) ([]event.Event, error)
	SubscribeEvents(ctx context.Context, sink chan<- event.Event) (Stream, error)
}

// Feed pumps chain events into the bus until ctx is done. A non-zero from
// makes it cover every block from there on; zero starts at the current head.
type Feed interface {
	Run(ctx context.Context, from uint64)
}
