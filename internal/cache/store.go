package cache

import (
	"context"
	"time"
)

// Store represents a shared cache interface used across the application.
//
// DeleteByPrefix exists because snapshot invalidation removes every key under
// "snapshot:{restaurantID}:". Backends implement it without relying on atomic
// glob deletion so the interface stays portable.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
