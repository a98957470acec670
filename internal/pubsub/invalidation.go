package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// InvalidationEvent tells every instance that a restaurant's permission data
// changed and cached snapshots for that tenant must be dropped.
type InvalidationEvent struct {
	RestaurantID string `json:"restaurant_id"`
	PermVersion  int64  `json:"perm_version"`
	Timestamp    int64  `json:"timestamp"`
}

// InvalidationHandler is the callback invoked for each received event.
type InvalidationHandler func(ctx context.Context, event InvalidationEvent)

// InvalidationPublisher publishes tenant invalidation events.
type InvalidationPublisher interface {
	PublishInvalidation(ctx context.Context, restaurantID string, permVersion int64) error
}

// InvalidationSubscriber consumes tenant invalidation events until ctx is cancelled.
type InvalidationSubscriber interface {
	Subscribe(ctx context.Context, handler InvalidationHandler) error
}

const invalidationChannel = "boteco:iam:invalidation"

// RedisInvalidationBus implements both InvalidationPublisher and
// InvalidationSubscriber using Redis Pub/Sub for cross-instance delivery.
type RedisInvalidationBus struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisInvalidationBus creates a Redis-backed invalidation bus.
func NewRedisInvalidationBus(client *redis.Client, log *zap.Logger) *RedisInvalidationBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisInvalidationBus{
		client: client,
		log:    log,
	}
}

// PublishInvalidation broadcasts a tenant invalidation event.
func (b *RedisInvalidationBus) PublishInvalidation(ctx context.Context, restaurantID string, permVersion int64) error {
	event := InvalidationEvent{
		RestaurantID: restaurantID,
		PermVersion:  permVersion,
		Timestamp:    time.Now().Unix(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("pubsub: marshal invalidation event: %w", err)
	}

	if err := b.client.Publish(ctx, invalidationChannel, data).Err(); err != nil {
		b.log.Error("failed to publish invalidation event",
			zap.String("restaurant_id", restaurantID),
			zap.Int64("perm_version", permVersion),
			zap.Error(err),
		)
		return fmt.Errorf("pubsub: publish invalidation event: %w", err)
	}

	b.log.Debug("invalidation event published",
		zap.String("restaurant_id", restaurantID),
		zap.Int64("perm_version", permVersion),
	)
	return nil
}

// Subscribe consumes invalidation events and calls the handler for each one.
// It blocks until the context is cancelled or the channel closes.
func (b *RedisInvalidationBus) Subscribe(ctx context.Context, handler InvalidationHandler) error {
	pubsub := b.client.Subscribe(ctx, invalidationChannel)
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("pubsub: subscribe to channel: %w", err)
	}

	b.log.Info("subscribed to invalidation events", zap.String("channel", invalidationChannel))

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("invalidation subscriber stopped", zap.Error(ctx.Err()))
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				b.log.Warn("invalidation channel closed")
				return nil
			}

			var event InvalidationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.log.Warn("failed to unmarshal invalidation event",
					zap.String("payload", msg.Payload),
					zap.Error(err),
				)
				continue
			}

			// Handle in a background goroutine so a slow handler cannot
			// block the event loop; detach from the subscriber lifecycle.
			go handler(context.Background(), event)
		}
	}
}
