package workers

import (
	"context"
	"time"

	"credpost/internal/core/event"
	eventsPort "credpost/internal/ports/events"

	"go.uber.org/zap"
)

// EventWorker pumps contract events from the chain into the bus. It prefers a
// live log subscription and falls back to polling when the transport has none.
type EventWorker struct {
	Source       eventsPort.Source
	Bus          eventsPort.Bus
	PollInterval time.Duration
	Logger       *zap.Logger
}

func NewEventWorker(source eventsPort.Source, bus eventsPort.Bus, pollInterval time.Duration, logger *zap.Logger) *EventWorker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &EventWorker{
		Source:       source,
		Bus:          bus,
		PollInterval: pollInterval,
		Logger:       logger,
	}
}

// Run publishes events until ctx is done. With from > 0 every event from
// that block on is delivered, including ones mined before Run started;
// otherwise delivery starts with the blocks mined after Run starts.
func (w *EventWorker) Run(ctx context.Context, from uint64) {
	w.Logger.Info("🚀 EventWorker started", zap.Uint64("from", from))
	defer w.Logger.Info("🛑 Event worker stopped")

	next, done := w.stream(ctx, from)
	if done {
		return
	}
	w.poll(ctx, next)
}

// stream consumes the live subscription. It reports done when ctx ended, and
// otherwise the next block polling must resume from (0 when unknown).
func (w *EventWorker) stream(ctx context.Context, from uint64) (uint64, bool) {
	sink := make(chan event.Event, 64)
	stream, err := w.Source.SubscribeEvents(ctx, sink)
	if err != nil {
		w.Logger.Info("Log subscription unavailable, polling instead", zap.Error(err))
		return from, false
	}
	defer stream.Unsubscribe()

	// The subscription is live before the head is read, so blocks up to head
	// are covered by the catch-up and later ones by the stream.
	head, err := w.Source.LatestBlock(ctx)
	if err != nil {
		w.Logger.Warn("⚠️ Error reading latest block, polling instead", zap.Error(err))
		return from, false
	}
	if from > 0 && from <= head {
		events, err := w.Source.FilterEvents(ctx, from, head)
		if err != nil {
			w.Logger.Warn("⚠️ Error catching up on contract events, polling instead",
				zap.Uint64("from", from), zap.Uint64("to", head), zap.Error(err))
			return from, false
		}
		for _, ev := range events {
			w.publish(ctx, ev)
		}
	}

	next := head + 1
	for {
		select {
		case <-ctx.Done():
			return next, true
		case ev := <-sink:
			if from > 0 && ev.BlockNumber <= head {
				continue // already published by the catch-up
			}
			w.publish(ctx, ev)
			if ev.BlockNumber >= next {
				next = ev.BlockNumber + 1
			}
		case err := <-stream.Err():
			w.Logger.Warn("⚠️ Log subscription dropped, polling instead",
				zap.Uint64("resumeFrom", next), zap.Error(err))
			return next, false
		}
	}
}

// poll filters logs block range by block range starting at next. A zero next
// starts after the head seen on the first pass.
func (w *EventWorker) poll(ctx context.Context, next uint64) {
	started := next > 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		head, err := w.Source.LatestBlock(ctx)
		if err != nil {
			w.Logger.Error("❌ Error reading latest block", zap.Error(err))
			sleep(ctx, w.PollInterval)
			continue
		}

		if !started {
			next = head + 1
			started = true
		} else if head >= next {
			events, err := w.Source.FilterEvents(ctx, next, head)
			if err != nil {
				w.Logger.Error("❌ Error fetching contract events", zap.Uint64("from", next), zap.Uint64("to", head), zap.Error(err))
				sleep(ctx, w.PollInterval)
				continue
			}
			for _, ev := range events {
				w.publish(ctx, ev)
			}
			next = head + 1
		}

		sleep(ctx, w.PollInterval)
	}
}

func (w *EventWorker) publish(ctx context.Context, ev event.Event) {
	w.Logger.Info("🔔 Contract event",
		zap.String("kind", string(ev.Kind)),
		zap.Uint64("block", ev.BlockNumber),
		zap.Stringer("tx", ev.TxHash),
	)
	if err := w.Bus.Publish(ctx, ev); err != nil {
		w.Logger.Warn("⚠️ Could not publish event", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
