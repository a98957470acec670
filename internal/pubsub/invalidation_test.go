package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisInvalidationBus_PublishSubscribe(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := NewRedisInvalidationBus(client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan InvalidationEvent, 1)
	subscribed := make(chan struct{})

	go func() {
		close(subscribed)
		_ = bus.Subscribe(ctx, func(_ context.Context, event InvalidationEvent) {
			received <- event
		})
	}()

	<-subscribed
	// Give the subscriber a moment to register with the server.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, bus.PublishInvalidation(ctx, "rest-1", 7))

	select {
	case event := <-received:
		require.Equal(t, "rest-1", event.RestaurantID)
		require.EqualValues(t, 7, event.PermVersion)
		require.NotZero(t, event.Timestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for invalidation event")
	}
}

func TestRedisInvalidationBus_SubscribeStopsOnCancel(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := NewRedisInvalidationBus(client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- bus.Subscribe(ctx, func(context.Context, InvalidationEvent) {})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop after cancellation")
	}
}
