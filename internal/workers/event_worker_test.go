package workers

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"credpost/internal/adapters/memory"
	"credpost/internal/core/event"
	eventsPort "credpost/internal/ports/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// pollingSource has no live subscription; events are keyed by block.
type pollingSource struct {
	mu     sync.Mutex
	head   uint64
	events map[uint64][]event.Event
	ranges [][2]uint64
}

func (s *pollingSource) LatestBlock(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head, nil
}

func (s *pollingSource) FilterEvents(ctx context.Context, from, to uint64) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges = append(s.ranges, [2]uint64{from, to})
	var out []event.Event
	for b := from; b <= to; b++ {
		out = append(out, s.events[b]...)
	}
	return out, nil
}

func (s *pollingSource) SubscribeEvents(ctx context.Context, sink chan<- event.Event) (eventsPort.Stream, error) {
	return nil, errors.New("notifications not supported")
}

func (s *pollingSource) mine(ev event.Event) event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head++
	ev.BlockNumber = s.head
	s.events[s.head] = append(s.events[s.head], ev)
	return ev
}

func (s *pollingSource) filtered() [][2]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][2]uint64(nil), s.ranges...)
}

func collect(t *testing.T, bus *memory.EventBus) func() []event.Event {
	var mu sync.Mutex
	var got []event.Event
	_, err := bus.Subscribe(func(_ context.Context, ev event.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	require.NoError(t, err)
	return func() []event.Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]event.Event(nil), got...)
	}
}

func TestEventWorker_PollsNewEventsOnly(t *testing.T) {
	source := &pollingSource{head: 10, events: map[uint64][]event.Event{
		5: {{Kind: event.PostCreated, PostID: big.NewInt(1)}}, // before start, never delivered
	}}
	bus := memory.NewEventBus(zap.NewNop())
	defer bus.Close()
	got := collect(t, bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w := NewEventWorker(source, bus, 5*time.Millisecond, zap.NewNop())
	go func() {
		w.Run(ctx, 0)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	source.mine(event.Event{Kind: event.PostCreated, PostID: big.NewInt(2)})
	source.mine(event.Event{Kind: event.Voted, PostID: big.NewInt(2)})

	require.Eventually(t, func() bool { return len(got()) == 2 }, time.Second, 5*time.Millisecond)
	events := got()
	assert.Equal(t, event.PostCreated, events[0].Kind)
	assert.Equal(t, event.Voted, events[1].Kind)
	assert.Equal(t, uint64(11), events[0].BlockNumber)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

type liveStream struct {
	errc chan error
	once sync.Once
	stop chan struct{}
}

func (s *liveStream) Unsubscribe()      { s.once.Do(func() { close(s.stop) }) }
func (s *liveStream) Err() <-chan error { return s.errc }

// streamingSource delivers events through a subscription.
type streamingSource struct {
	pollingSource
	stream *liveStream
	sink   chan<- event.Event
	ready  chan struct{}
}

func (s *streamingSource) SubscribeEvents(ctx context.Context, sink chan<- event.Event) (eventsPort.Stream, error) {
	s.sink = sink
	close(s.ready)
	return s.stream, nil
}

func TestEventWorker_UsesSubscription(t *testing.T) {
	source := &streamingSource{
		pollingSource: pollingSource{events: map[uint64][]event.Event{}},
		stream:        &liveStream{errc: make(chan error, 1), stop: make(chan struct{})},
		ready:         make(chan struct{}),
	}
	bus := memory.NewEventBus(zap.NewNop())
	defer bus.Close()
	got := collect(t, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewEventWorker(source, bus, time.Hour, zap.NewNop()).Run(ctx, 0)

	<-source.ready
	source.sink <- event.Event{Kind: event.PostFinalized, PostID: big.NewInt(4), BlockNumber: 3}

	require.Eventually(t, func() bool { return len(got()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, event.PostFinalized, got()[0].Kind)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case <-source.stream.stop:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func newStreamingSource(head uint64) *streamingSource {
	return &streamingSource{
		pollingSource: pollingSource{head: head, events: map[uint64][]event.Event{}},
		stream:        &liveStream{errc: make(chan error, 1), stop: make(chan struct{})},
		ready:         make(chan struct{}),
	}
}

func blocks(events []event.Event) []uint64 {
	out := make([]uint64, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.BlockNumber)
	}
	return out
}

func TestEventWorker_PollingStartsAtScannedHead(t *testing.T) {
	// history was scanned up to block 100; block 101 was mined before the worker started
	source := &pollingSource{head: 100, events: map[uint64][]event.Event{}}
	source.mine(event.Event{Kind: event.PostCreated, PostID: big.NewInt(9)})

	bus := memory.NewEventBus(zap.NewNop())
	defer bus.Close()
	got := collect(t, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewEventWorker(source, bus, 5*time.Millisecond, zap.NewNop()).Run(ctx, 101)

	require.Eventually(t, func() bool { return len(got()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "9", got()[0].PostID.String())
	assert.Equal(t, uint64(101), source.filtered()[0][0])
}

func TestEventWorker_StreamCatchesUpWithoutDuplicates(t *testing.T) {
	source := newStreamingSource(100)
	missed := source.mine(event.Event{Kind: event.PostCreated, PostID: big.NewInt(9)})

	bus := memory.NewEventBus(zap.NewNop())
	defer bus.Close()
	got := collect(t, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewEventWorker(source, bus, time.Hour, zap.NewNop()).Run(ctx, 101)

	<-source.ready
	source.sink <- missed // the node may replay the head block on the stream
	source.sink <- event.Event{Kind: event.Voted, PostID: big.NewInt(9), BlockNumber: 102}

	require.Eventually(t, func() bool { return len(got()) == 2 }, time.Second, 5*time.Millisecond)
	events := got()
	assert.Equal(t, []uint64{101, 102}, blocks(events))
	assert.Equal(t, event.PostCreated, events[0].Kind)
	assert.Equal(t, event.Voted, events[1].Kind)
}

func TestEventWorker_FallsBackToPollingAfterDrop(t *testing.T) {
	source := newStreamingSource(5)

	bus := memory.NewEventBus(zap.NewNop())
	defer bus.Close()
	got := collect(t, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewEventWorker(source, bus, 5*time.Millisecond, zap.NewNop()).Run(ctx, 0)

	<-source.ready
	source.sink <- source.mine(event.Event{Kind: event.PostCreated, PostID: big.NewInt(1)})
	require.Eventually(t, func() bool { return len(got()) == 1 }, time.Second, 5*time.Millisecond)

	source.stream.errc <- errors.New("connection lost")
	source.mine(event.Event{Kind: event.Voted, PostID: big.NewInt(1)})
	source.mine(event.Event{Kind: event.PostFinalized, PostID: big.NewInt(1)})

	require.Eventually(t, func() bool { return len(got()) == 3 }, time.Second, 5*time.Millisecond)
	events := got()
	assert.Equal(t, []uint64{6, 7, 8}, blocks(events))
	assert.Equal(t, event.Voted, events[1].Kind)
	assert.Equal(t, event.PostFinalized, events[2].Kind)

	ranges := source.filtered()
	require.NotEmpty(t, ranges)
	assert.Equal(t, uint64(7), ranges[0][0], "polling resumes right after the last streamed block")
}
