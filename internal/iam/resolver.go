package iam

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/botecohq/boteco/pkg/metrics"

	"github.com/botecohq/boteco/internal/cache"
)

const (
	defaultSnapshotTTL  = time.Hour
	defaultBuildTimeout = 5 * time.Second
)

// Resolver answers the two permission questions the rest of the system asks:
// the full snapshot tree for a user in a restaurant, and a single yes/no
// point query. Snapshots are cached per (restaurant, user) and validated
// against the restaurant's permission version on every read, so a stale entry
// can never be served even if an invalidation event was missed.
type Resolver struct {
	db     *gorm.DB
	loader *Loader
	store  cache.Store
	log    *zap.Logger

	ttl          time.Duration
	buildTimeout time.Duration
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithSnapshotTTL overrides the cache TTL for stored snapshots.
func WithSnapshotTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithBuildTimeout caps how long a snapshot build or point query may take.
func WithBuildTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		if timeout > 0 {
			r.buildTimeout = timeout
		}
	}
}

// NewResolver creates a Resolver. The cache store may be nil, in which case
// every snapshot request rebuilds from the database.
func NewResolver(db *gorm.DB, store cache.Store, log *zap.Logger, opts ...ResolverOption) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}

	r := &Resolver{
		db:           db,
		loader:       NewLoader(db),
		store:        store,
		log:          log,
		ttl:          defaultSnapshotTTL,
		buildTimeout: defaultBuildTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot returns the permission tree for one user in one restaurant,
// serving from cache when the cached entry's version still matches the
// restaurant's current permission version.
func (r *Resolver) Snapshot(ctx context.Context, restaurantID, userID string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.buildTimeout)
	defer cancel()

	version, err := CurrentPermVersion(ctx, r.db, restaurantID)
	if err != nil {
		return nil, err
	}

	key := SnapshotCacheKey(restaurantID, userID)
	if cached := r.cachedSnapshot(ctx, key, version); cached != nil {
		return cached, nil
	}

	snap, err := r.build(ctx, restaurantID, userID, version)
	if err != nil {
		metrics.SnapshotBuilds.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.SnapshotBuilds.WithLabelValues("ok").Inc()

	r.storeSnapshot(ctx, key, snap)
	return snap, nil
}

// cachedSnapshot returns a still-valid cached snapshot or nil. Cache failures
// are treated as misses so the engine keeps answering from the database.
func (r *Resolver) cachedSnapshot(ctx context.Context, key string, version int64) *Snapshot {
	if r.store == nil {
		return nil
	}

	data, found, err := r.store.Get(ctx, key)
	if err != nil {
		r.log.Warn("snapshot cache read failed", zap.String("key", key), zap.Error(err))
		metrics.SnapshotCache.WithLabelValues("miss").Inc()
		return nil
	}
	if !found {
		metrics.SnapshotCache.WithLabelValues("miss").Inc()
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.log.Warn("snapshot cache entry corrupt", zap.String("key", key), zap.Error(err))
		metrics.SnapshotCache.WithLabelValues("miss").Inc()
		return nil
	}

	if snap.PermVersion != version {
		metrics.SnapshotCache.WithLabelValues("stale").Inc()
		return nil
	}

	metrics.SnapshotCache.WithLabelValues("hit").Inc()
	return &snap
}

func (r *Resolver) storeSnapshot(ctx context.Context, key string, snap *Snapshot) {
	if r.store == nil {
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		r.log.Error("marshal snapshot", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.store.Set(ctx, key, data, r.ttl); err != nil {
		r.log.Warn("snapshot cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *Resolver) build(ctx context.Context, restaurantID, userID string, version int64) (*Snapshot, error) {
	principal, err := r.loader.LoadPrincipal(ctx, restaurantID, userID)
	if err != nil {
		return nil, err
	}

	modules, err := r.loader.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	actions, err := r.loader.LoadActions(ctx)
	if err != nil {
		return nil, err
	}
	entitlements, err := r.loader.LoadEntitlements(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	rolePerms, err := r.loader.LoadRolePermissions(ctx, restaurantID, userID)
	if err != nil {
		return nil, err
	}
	overrides, err := r.loader.LoadOverrides(ctx, restaurantID, userID)
	if err != nil {
		return nil, err
	}

	return BuildSnapshot(BuildInput{
		RestaurantID:    restaurantID,
		UserID:          userID,
		PermVersion:     version,
		IsSuperadmin:    principal.IsSuperadmin,
		IsOwner:         principal.IsOwner,
		Modules:         modules,
		Actions:         actions,
		Entitlements:    entitlements,
		RolePermissions: rolePerms,
		Overrides:       overrides,
	}), nil
}

// CheckPermission answers a single (feature, action) question with narrow
// queries instead of building the whole tree. Unknown keys and locked
// entitlements come back as structured denials, not errors.
func (r *Resolver) CheckPermission(ctx context.Context, restaurantID, userID, featureKey, actionKey string) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, r.buildTimeout)
	defer cancel()

	if _, err := CurrentPermVersion(ctx, r.db, restaurantID); err != nil {
		return Decision{}, err
	}

	principal, err := r.loader.LoadPrincipal(ctx, restaurantID, userID)
	if err != nil {
		return Decision{}, err
	}

	if principal.IsSuperadmin {
		return r.observed(Decision{Allowed: true, Reason: ReasonSuperadmin}), nil
	}

	feature, err := r.loader.FindFeatureByKey(ctx, featureKey)
	if err != nil {
		return Decision{}, err
	}
	if feature == nil {
		return r.observed(Decision{Allowed: false, Reason: ReasonFeatureNotFound}), nil
	}

	action, err := r.loader.FindActionByKey(ctx, actionKey)
	if err != nil {
		return Decision{}, err
	}
	if action == nil {
		return r.observed(Decision{Allowed: false, Reason: ReasonActionNotFound}), nil
	}

	status, err := r.loader.EffectiveStatus(ctx, restaurantID, feature)
	if err != nil {
		return Decision{}, err
	}
	if !status.Unlocked() {
		return r.observed(Decision{Allowed: false, Locked: true, Reason: ReasonLocked}), nil
	}

	if principal.IsOwner {
		return r.observed(Decision{Allowed: true, Reason: ReasonOwner}), nil
	}

	override, err := r.loader.LoadOverrideFor(ctx, restaurantID, userID, feature.ID, action.ID)
	if err != nil {
		return Decision{}, err
	}

	var verdict RoleVerdict
	if override == nil {
		verdict, err = r.loader.LoadRoleVerdict(ctx, restaurantID, userID, feature.ID, action.ID)
		if err != nil {
			return Decision{}, err
		}
	}

	decision := Decide(DecideInput{
		Override: override,
		Roles:    verdict,
	})
	return r.observed(decision), nil
}

func (r *Resolver) observed(d Decision) Decision {
	result := "deny"
	if d.Allowed {
		result = "allow"
	}
	metrics.PermissionChecks.WithLabelValues(result, d.Reason).Inc()
	return d
}
