package iam

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/botecohq/boteco/internal/cache"
	"github.com/botecohq/boteco/internal/pubsub"
)

func TestInvalidator_DropsTenantKeysOnEvent(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := cache.NewRedisStore(client)
	bus := pubsub.NewRedisInvalidationBus(client, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, store.Set(ctx, SnapshotCacheKey("rest-1", "u1"), []byte("a"), time.Minute))
	require.NoError(t, store.Set(ctx, SnapshotCacheKey("rest-1", "u2"), []byte("b"), time.Minute))
	require.NoError(t, store.Set(ctx, SnapshotCacheKey("rest-2", "u1"), []byte("c"), time.Minute))

	invalidator := NewInvalidator(store, bus, nil)
	go func() { _ = invalidator.Run(ctx) }()

	// Give the subscriber a moment to register with the server.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, bus.PublishInvalidation(ctx, "rest-1", 5))

	require.Eventually(t, func() bool {
		_, found, err := store.Get(ctx, SnapshotCacheKey("rest-1", "u1"))
		return err == nil && !found
	}, 2*time.Second, 20*time.Millisecond)

	_, found, err := store.Get(ctx, SnapshotCacheKey("rest-1", "u2"))
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = store.Get(ctx, SnapshotCacheKey("rest-2", "u1"))
	require.NoError(t, err)
	require.True(t, found)
}
