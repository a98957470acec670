package iam

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "github.com/botecohq/boteco/pkg/errors"

	"github.com/botecohq/boteco/internal/models"
)

// Loader performs every database read the permission engine needs. It keeps
// the builder free of I/O and gives the point query narrow, indexed lookups
// instead of a full catalog load.
type Loader struct {
	db *gorm.DB
}

// NewLoader creates a Loader bound to a database handle.
func NewLoader(db *gorm.DB) *Loader {
	return &Loader{db: db}
}

// Principal is the identity context a permission decision starts from.
type Principal struct {
	UserID       string
	RestaurantID string
	IsSuperadmin bool
	IsOwner      bool
	IsMember     bool
}

// LoadPrincipal resolves the user's superadmin flag and membership edge for
// the restaurant. Unknown users surface as NotFound.
func (l *Loader) LoadPrincipal(ctx context.Context, restaurantID, userID string) (Principal, error) {
	var user models.User
	err := l.db.WithContext(ctx).Select("id", "is_superadmin", "active").Take(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Principal{}, apperrors.NewNotFound("User not found")
		}
		return Principal{}, fmt.Errorf("iam: load user: %w", err)
	}

	principal := Principal{
		UserID:       userID,
		RestaurantID: restaurantID,
		IsSuperadmin: user.IsSuperadmin,
	}

	var membership models.UserRestaurant
	err = l.db.WithContext(ctx).
		Take(&membership, "user_id = ? AND restaurant_id = ?", userID, restaurantID).Error
	switch {
	case err == nil:
		principal.IsMember = true
		principal.IsOwner = membership.IsOwner
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Not a member. Superadmins still resolve; everyone else just
		// gets default-deny decisions.
	default:
		return Principal{}, fmt.Errorf("iam: load membership: %w", err)
	}

	return principal, nil
}

// LoadCatalog returns the full module tree with submodules and features
// preloaded, everything ordered by sort_order.
func (l *Loader) LoadCatalog(ctx context.Context) ([]models.Module, error) {
	var modules []models.Module
	err := l.db.WithContext(ctx).
		Preload("Submodules", func(db *gorm.DB) *gorm.DB {
			return db.Order("submodules.sort_order ASC")
		}).
		Preload("Submodules.Features", func(db *gorm.DB) *gorm.DB {
			return db.Order("features.sort_order ASC")
		}).
		Preload("Features", func(db *gorm.DB) *gorm.DB {
			return db.Where("features.submodule_id IS NULL").Order("features.sort_order ASC")
		}).
		Order("modules.sort_order ASC").
		Find(&modules).Error
	if err != nil {
		return nil, fmt.Errorf("iam: load catalog: %w", err)
	}
	return modules, nil
}

// LoadActions returns the flat action vocabulary ordered by sort_order.
func (l *Loader) LoadActions(ctx context.Context) ([]models.Action, error) {
	var actions []models.Action
	if err := l.db.WithContext(ctx).Order("sort_order ASC").Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("iam: load actions: %w", err)
	}
	return actions, nil
}

// LoadEntitlements returns the restaurant's entitlement rows keyed by entity.
func (l *Loader) LoadEntitlements(ctx context.Context, restaurantID string) (map[EntityRef]EntitlementStatus, error) {
	var rows []models.Entitlement
	err := l.db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("iam: load entitlements: %w", err)
	}

	out := make(map[EntityRef]EntitlementStatus, len(rows))
	for _, row := range rows {
		out[EntityRef{Type: row.EntityType, ID: row.EntityID}] = EntitlementStatus(row.Status)
	}
	return out, nil
}

// LoadRolePermissions merges the permission rows of every role the user holds
// in the restaurant. An explicit deny from any role wins over allows from the
// others.
func (l *Loader) LoadRolePermissions(ctx context.Context, restaurantID, userID string) (map[PermKey]bool, error) {
	var rows []models.RolePermission
	err := l.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.role_id = role_permissions.role_id").
		Where("user_roles.user_id = ? AND user_roles.restaurant_id = ?", userID, restaurantID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("iam: load role permissions: %w", err)
	}

	out := make(map[PermKey]bool, len(rows))
	for _, row := range rows {
		key := PermKey{FeatureID: row.FeatureID, ActionID: row.ActionID}
		if prev, ok := out[key]; ok {
			out[key] = prev && row.Allowed
		} else {
			out[key] = row.Allowed
		}
	}
	return out, nil
}

// LoadOverrides returns the user's per-pair overrides in the restaurant.
func (l *Loader) LoadOverrides(ctx context.Context, restaurantID, userID string) (map[PermKey]bool, error) {
	var rows []models.UserPermissionOverride
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND restaurant_id = ?", userID, restaurantID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("iam: load overrides: %w", err)
	}

	out := make(map[PermKey]bool, len(rows))
	for _, row := range rows {
		out[PermKey{FeatureID: row.FeatureID, ActionID: row.ActionID}] = row.Allowed
	}
	return out, nil
}

// FindFeatureByKey looks up one feature by its stable catalog key.
func (l *Loader) FindFeatureByKey(ctx context.Context, key string) (*models.Feature, error) {
	var feature models.Feature
	err := l.db.WithContext(ctx).Take(&feature, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("iam: find feature %q: %w", key, err)
	}
	return &feature, nil
}

// FindActionByKey looks up one action by its stable key.
func (l *Loader) FindActionByKey(ctx context.Context, key string) (*models.Action, error) {
	var action models.Action
	err := l.db.WithContext(ctx).Take(&action, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("iam: find action %q: %w", key, err)
	}
	return &action, nil
}

// EffectiveStatus walks the entitlement chain for one feature: the feature
// itself, then its submodule, then the owning module. The first non-unlocked
// status along the chain locks the feature; when no row exists anywhere the
// default policy applies.
func (l *Loader) EffectiveStatus(ctx context.Context, restaurantID string, feature *models.Feature) (EntitlementStatus, error) {
	refs := []EntityRef{{Type: EntityFeature, ID: feature.ID}}

	moduleID := feature.ModuleID
	if feature.SubmoduleID != nil {
		refs = append(refs, EntityRef{Type: EntitySubmodule, ID: *feature.SubmoduleID})

		var submodule models.Submodule
		err := l.db.WithContext(ctx).Select("id", "module_id").Take(&submodule, "id = ?", *feature.SubmoduleID).Error
		if err != nil {
			return "", fmt.Errorf("iam: load submodule: %w", err)
		}
		moduleID = &submodule.ModuleID
	}
	if moduleID != nil {
		refs = append(refs, EntityRef{Type: EntityModule, ID: *moduleID})
	}

	for _, ref := range refs {
		var row models.Entitlement
		err := l.db.WithContext(ctx).
			Take(&row, "restaurant_id = ? AND entity_type = ? AND entity_id = ?", restaurantID, ref.Type, ref.ID).Error
		switch {
		case err == nil:
			status := EntitlementStatus(row.Status)
			if !status.Unlocked() {
				return status, nil
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// No row at this level, keep walking up.
		default:
			return "", fmt.Errorf("iam: load entitlement: %w", err)
		}
	}

	return DefaultEntitlementStatus, nil
}

// LoadOverrideFor returns the user's override for one (feature, action) pair,
// nil when none exists.
func (l *Loader) LoadOverrideFor(ctx context.Context, restaurantID, userID, featureID, actionID string) (*bool, error) {
	var row models.UserPermissionOverride
	err := l.db.WithContext(ctx).
		Take(&row, "user_id = ? AND restaurant_id = ? AND feature_id = ? AND action_id = ?",
			userID, restaurantID, featureID, actionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("iam: load override: %w", err)
	}
	return &row.Allowed, nil
}

// LoadRoleVerdict merges the role rows for one (feature, action) pair across
// every role the user holds in the restaurant.
func (l *Loader) LoadRoleVerdict(ctx context.Context, restaurantID, userID, featureID, actionID string) (RoleVerdict, error) {
	var rows []models.RolePermission
	err := l.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.role_id = role_permissions.role_id").
		Where("user_roles.user_id = ? AND user_roles.restaurant_id = ?", userID, restaurantID).
		Where("role_permissions.feature_id = ? AND role_permissions.action_id = ?", featureID, actionID).
		Find(&rows).Error
	if err != nil {
		return RoleVerdict{}, fmt.Errorf("iam: load role verdict: %w", err)
	}

	var verdict RoleVerdict
	for _, row := range rows {
		if row.Allowed {
			verdict.HasAllow = true
		} else {
			verdict.HasDeny = true
		}
	}
	return verdict, nil
}
