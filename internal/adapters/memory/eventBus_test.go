package memory

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"credpost/internal/core/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) handle(_ context.Context, ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

func TestEventBus_FiltersByKind(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	defer bus.Close()

	var created, all recorder
	_, err := bus.Subscribe(created.handle, event.PostCreated)
	require.NoError(t, err)
	_, err = bus.Subscribe(all.handle)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, event.Event{Kind: event.PostCreated, PostID: big.NewInt(1)}))
	require.NoError(t, bus.Publish(ctx, event.Event{Kind: event.Voted, PostID: big.NewInt(1)}))

	assert.Eventually(t, func() bool { return len(all.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, created.snapshot(), 1)
}

func TestEventBus_PreservesOrder(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	defer bus.Close()

	var r recorder
	_, err := bus.Subscribe(r.handle)
	require.NoError(t, err)

	for i := int64(0); i < 50; i++ {
		require.NoError(t, bus.Publish(context.Background(), event.Event{Kind: event.Voted, PostID: big.NewInt(i)}))
	}

	require.Eventually(t, func() bool { return len(r.snapshot()) == 50 }, time.Second, 5*time.Millisecond)
	for i, ev := range r.snapshot() {
		assert.Equal(t, int64(i), ev.PostID.Int64())
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	defer bus.Close()

	var r recorder
	sub, err := bus.Subscribe(r.handle)
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID())

	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	require.NoError(t, bus.Publish(context.Background(), event.Event{Kind: event.PostFinalized}))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, r.snapshot())
}

func TestEventBus_Closed(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	_, err := bus.Subscribe(func(context.Context, event.Event) {})
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.ErrorIs(t, bus.Publish(context.Background(), event.Event{}), ErrBusClosed)
}

func TestEventBus_NilHandler(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	defer bus.Close()
	_, err := bus.Subscribe(nil)
	assert.Error(t, err)
}
