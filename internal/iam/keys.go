package iam

import "fmt"

// SnapshotCacheKey is the cache key for one user's snapshot in one restaurant.
func SnapshotCacheKey(restaurantID, userID string) string {
	return fmt.Sprintf("snapshot:%s:%s", restaurantID, userID)
}

// SnapshotKeyPrefix covers every cached snapshot for one restaurant, used to
// invalidate the whole tenant in one pass.
func SnapshotKeyPrefix(restaurantID string) string {
	return fmt.Sprintf("snapshot:%s:", restaurantID)
}
