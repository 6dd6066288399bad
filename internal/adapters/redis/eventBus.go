package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"credpost/internal/adapters/memory"
	"credpost/internal/core/event"
	eventsPort "credpost/internal/ports/events"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// EventBusRedis fans events out through a Redis pub/sub channel, so every
// process subscribed to the channel sees the same stream. Local handlers are
// dispatched by an in-memory bus fed from the channel.
type EventBusRedis struct {
	Client  *redis.Client
	Channel string
	Logger  *zap.Logger

	local  *memory.EventBus
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func NewEventBusRedis(ctx context.Context, client *redis.Client, channel string, logger *zap.Logger) (*EventBusRedis, error) {
	pubsub := client.Subscribe(ctx, channel)
	// wait for the subscription to be confirmed before anyone publishes
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	b := &EventBusRedis{
		Client:  client,
		Channel: channel,
		Logger:  logger,
		local:   memory.NewEventBus(logger),
		pubsub:  pubsub,
		cancel:  cancel,
	}
	go b.listen(listenCtx)

	logger.Info("✅ Redis event bus subscribed", zap.String("channel", channel))
	return b, nil
}

func (b *EventBusRedis) listen(ctx context.Context) {
	for msg := range b.pubsub.Channel() {
		var ev event.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			b.Logger.Error("❌ Dropping malformed event", zap.String("payload", msg.Payload), zap.Error(err))
			continue
		}
		if err := b.local.Publish(ctx, ev); err != nil {
			b.Logger.Warn("⚠️ Could not dispatch event", zap.String("kind", string(ev.Kind)), zap.Error(err))
			return
		}
	}
}

func (b *EventBusRedis) Publish(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Kind, err)
	}
	if err := b.Client.Publish(ctx, b.Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	return nil
}

func (b *EventBusRedis) Subscribe(h eventsPort.Handler, kinds ...event.Kind) (eventsPort.Subscription, error) {
	return b.local.Subscribe(h, kinds...)
}

func (b *EventBusRedis) Close() error {
	b.cancel()
	err := b.pubsub.Close()
	b.local.Close()
	return err
}
