package iam

import (
	"context"

	"go.uber.org/zap"

	"github.com/botecohq/boteco/pkg/metrics"

	"github.com/botecohq/boteco/internal/cache"
	"github.com/botecohq/boteco/internal/pubsub"
)

// InvalidateTenant drops every cached snapshot for a restaurant. It is best
// effort: version checking on reads makes stale entries harmless, so callers
// log failures instead of propagating them.
func InvalidateTenant(ctx context.Context, store cache.Store, restaurantID, trigger string, log *zap.Logger) {
	if store == nil {
		return
	}
	if log == nil {
		log = zap.NewNop()
	}

	removed, err := store.DeleteByPrefix(ctx, SnapshotKeyPrefix(restaurantID))
	if err != nil {
		log.Warn("snapshot invalidation failed",
			zap.String("restaurant_id", restaurantID),
			zap.String("trigger", trigger),
			zap.Error(err),
		)
		return
	}

	metrics.CacheInvalidations.WithLabelValues(trigger).Inc()
	log.Debug("tenant snapshots invalidated",
		zap.String("restaurant_id", restaurantID),
		zap.String("trigger", trigger),
		zap.Int64("removed", removed),
	)
}

// Invalidator bridges the invalidation bus to the local snapshot cache so
// every instance drops its tenant keys when any instance mutates permissions.
type Invalidator struct {
	store cache.Store
	bus   pubsub.InvalidationSubscriber
	log   *zap.Logger
}

// NewInvalidator creates an Invalidator.
func NewInvalidator(store cache.Store, bus pubsub.InvalidationSubscriber, log *zap.Logger) *Invalidator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Invalidator{store: store, bus: bus, log: log}
}

// Run subscribes to invalidation events and purges the affected tenant's
// snapshots for each one. It blocks until the context is cancelled.
func (i *Invalidator) Run(ctx context.Context) error {
	return i.bus.Subscribe(ctx, func(ctx context.Context, event pubsub.InvalidationEvent) {
		InvalidateTenant(ctx, i.store, event.RestaurantID, "pubsub", i.log)
	})
}
