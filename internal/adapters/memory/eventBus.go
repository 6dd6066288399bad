package memory

import (
	"context"
	"errors"
	"sync"

	"credpost/internal/core/event"
	eventsPort "credpost/internal/ports/events"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

const queueSize = 64

var ErrBusClosed = errors.New("event bus closed")

// EventBus is the in-process publish/subscribe bus. Each subscription has its
// own queue and goroutine, so a slow handler never reorders or blocks others
// beyond its queue size.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	closed bool
	Logger *zap.Logger
}

func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subs:   make(map[string]*subscription),
		Logger: logger,
	}
}

type subscription struct {
	id      string
	kinds   map[event.Kind]bool
	handler eventsPort.Handler
	queue   chan delivery
	done    chan struct{}
	once    sync.Once
	bus     *EventBus
}

type delivery struct {
	ctx context.Context
	ev  event.Event
}

func (s *subscription) ID() string { return s.id }

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		close(s.done)
	})
}

func (s *subscription) wants(kind event.Kind) bool {
	return len(s.kinds) == 0 || s.kinds[kind]
}

func (s *subscription) loop() {
	for {
		select {
		case <-s.done:
			return
		case d := <-s.queue:
			s.handler(d.ctx, d.ev)
		}
	}
}

func (b *EventBus) Subscribe(h eventsPort.Handler, kinds ...event.Kind) (eventsPort.Subscription, error) {
	if h == nil {
		return nil, errors.New("nil event handler")
	}

	sub := &subscription{
		id:      uuid.Must(uuid.NewV4()).String(),
		kinds:   make(map[event.Kind]bool, len(kinds)),
		handler: h,
		queue:   make(chan delivery, queueSize),
		done:    make(chan struct{}),
		bus:     b,
	}
	for _, k := range kinds {
		sub.kinds[k] = true
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go sub.loop()
	return sub, nil
}

// Publish enqueues ev for every matching subscriber. It blocks while a
// subscriber's queue is full, until ctx is done.
func (b *EventBus) Publish(ctx context.Context, ev event.Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	targets := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(ev.Kind) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.queue <- delivery{ctx: ctx, ev: ev}:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *EventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	b.Logger.Info("🛑 Event bus closed")
	return nil
}
