package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	apperrors "github.com/botecohq/boteco/pkg/errors"

	"github.com/botecohq/boteco/internal/cache"
	"github.com/botecohq/boteco/internal/iam"
	"github.com/botecohq/boteco/internal/models"
	"github.com/botecohq/boteco/internal/pubsub"
)

// IamService owns every permission-affecting mutation: roles, role
// permissions, user role assignments, user overrides and entitlements. Each
// write runs in a transaction together with the tenant's permission version
// bump, then invalidates cached snapshots and broadcasts the change to the
// other instances.
type IamService struct {
	db    *gorm.DB
	audit *AuditService
	store cache.Store
	bus   pubsub.InvalidationPublisher
	log   *zap.Logger
}

// NewIamService constructs an IamService. The cache store and the
// invalidation bus are optional; the audit service is optional too.
func NewIamService(db *gorm.DB, audit *AuditService, store cache.Store, bus pubsub.InvalidationPublisher, log *zap.Logger) (*IamService, error) {
	if db == nil {
		return nil, errors.New("iam service: db is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IamService{
		db:    db,
		audit: audit,
		store: store,
		bus:   bus,
		log:   log,
	}, nil
}

// mutate wraps a permission write: the supplied function and the version bump
// commit atomically, then the tenant's cached snapshots are dropped and an
// invalidation event is published. Invalidation is best effort since version
// checking on reads keeps stale entries harmless.
func (s *IamService) mutate(ctx context.Context, restaurantID string, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}
		return iam.BumpPermVersion(ctx, tx, restaurantID)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, restaurantID)
	return nil
}

func (s *IamService) invalidate(ctx context.Context, restaurantID string) {
	iam.InvalidateTenant(ctx, s.store, restaurantID, "mutation", s.log)

	if s.bus == nil {
		return
	}
	version, err := iam.CurrentPermVersion(ctx, s.db, restaurantID)
	if err != nil {
		s.log.Warn("load perm version for invalidation event", zap.String("restaurant_id", restaurantID), zap.Error(err))
		return
	}
	// The bus logs its own failures.
	_ = s.bus.PublishInvalidation(ctx, restaurantID, version)
}

// ---- catalog ----

// ListCatalog returns the full module tree ordered by sort_order.
func (s *IamService) ListCatalog(ctx context.Context) ([]models.Module, error) {
	ctx = ensureContext(ctx)
	return iam.NewLoader(s.db).LoadCatalog(ctx)
}

// ListActions returns the flat action vocabulary.
func (s *IamService) ListActions(ctx context.Context) ([]models.Action, error) {
	ctx = ensureContext(ctx)
	return iam.NewLoader(s.db).LoadActions(ctx)
}

// ---- roles ----

// CreateRoleInput captures the attributes of a new tenant role.
type CreateRoleInput struct {
	Key  string
	Name string
}

// UpdateRoleInput represents mutable role fields.
type UpdateRoleInput struct {
	Name *string
}

// ListRoles returns the restaurant's own roles plus the shared system roles.
func (s *IamService) ListRoles(ctx context.Context, restaurantID string) ([]models.Role, error) {
	ctx = ensureContext(ctx)

	var roles []models.Role
	err := s.db.WithContext(ctx).
		Where("restaurant_id = ? OR restaurant_id IS NULL", restaurantID).
		Order("is_system DESC, key ASC").
		Find(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("iam service: list roles: %w", err)
	}
	return roles, nil
}

// CreateRole registers a tenant-scoped role.
func (s *IamService) CreateRole(ctx context.Context, restaurantID string, input CreateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	key := strings.TrimSpace(input.Key)
	name := strings.TrimSpace(input.Name)
	if key == "" {
		return nil, apperrors.NewBadRequest("Role key is required")
	}
	if name == "" {
		return nil, apperrors.NewBadRequest("Role name is required")
	}

	role := &models.Role{
		RestaurantID: &restaurantID,
		Key:          key,
		Name:         name,
	}

	err := s.mutate(ctx, restaurantID, func(tx *gorm.DB) error {
		if err := tx.Create(role).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.NewConflict("A role with this key already exists")
			}
			return fmt.Errorf("iam service: create role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordIamAudit(ctx, restaurantID, "iam.role.create", role.ID, map[string]any{"key": key})
	return role, nil
}

// UpdateRole renames a tenant role. System roles are immutable.
func (s *IamService) UpdateRole(ctx context.Context, restaurantID, roleID string, input UpdateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	var role *models.Role
	err := s.mutate(ctx, restaurantID, func(tx *gorm.DB) error {
		loaded, err := loadTenantRole(tx, restaurantID, roleID)
		if err != nil {
			return err
		}
		if loaded.IsSystem {
			return apperrors.NewBadRequest("System roles cannot be modified")
		}

		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return apperrors.NewBadRequest("Role name is required")
			}
			loaded.Name = name
		}

		if err := tx.Save(loaded).Error; err != nil {
			return fmt.Errorf("iam service: update role: %w", err)
		}
		role = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordIamAudit(ctx, restaurantID, "iam.role.update", roleID, nil)
	return role, nil
}

// DeleteRole removes a tenant role and its permission rows. Roles still
// assigned to users cannot be deleted.
func (s *IamService) DeleteRole(ctx context.Context, restaurantID, roleID string) error {
	ctx = ensureContext(ctx)

	err := s.mutate(ctx, restaurantID, func(tx *gorm.DB) error {
		role, err := loadTenantRole(tx, restaurantID, roleID)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return apperrors.NewBadRequest("System roles cannot be deleted")
		}

		var assignments int64
		if err := tx.Model(&models.UserRole{}).Where("role_id = ?", roleID).Count(&assignments).Error; err != nil {
			return fmt.Errorf("iam service: count role assignments: %w", err)
		}
		if assignments > 0 {
			return apperrors.NewConflict("Role is still assigned to users")
		}

		if err := tx.Where("role_id = ?", roleID).Delete(&models.RolePermission{}).Error; err != nil {
			return fmt.Errorf("iam service: delete role permissions: %w", err)
		}
		if err := tx.Delete(&models.Role{}, "id = ?", roleID).Error; err != nil {
			return fmt.Errorf("iam service: delete role: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordIamAudit(ctx, restaurantID, "iam.role.delete", roleID, nil)
	return nil
}

// RolePermissionInput is one explicit allow or deny in a role's permission set.
type RolePermissionInput struct {
	FeatureID string
	ActionID  string
	Allowed   bool
}

// GetRolePermissions returns a role's permission rows with feature and action
// references preloaded.
func (s *IamService) GetRolePermissions(ctx context.Context, restaurantID, roleID string) ([]models.RolePermission, error) {
	ctx = ensureContext(ctx)

	if _, err := loadTenantOrSystemRole(s.db.WithContext(ctx), restaurantID, roleID); err != nil {
		return nil, err
	}

	var rows []models.RolePermission
	err := s.db.WithContext(ctx).
		Preload("Feature").
		Preload("Action").
		Where("role_id = ?", roleID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("iam service: get role permissions: %w", err)
	}
	return rows, nil
}

// SetRolePermissions replaces a role's entire permission set.
func (s *IamService) SetRolePermissions(ctx context.Context, restaurantID, roleID string, entries []RolePermissionInput) error {
	ctx = ensureContext(ctx)

	err := s.mutate(ctx, restaurantID, func(tx *gorm.DB) error {
		role, err := loadTenantRole(tx, restaurantID, roleID)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return apperrors.NewBadRequest("System roles cannot be modified")
		}

		if err := validatePermissionPairs(tx, pairsFromRoleInputs(entries)); err != nil {
			return err
		}

		if err := tx.Where("role_id = ?", roleID).Delete(&models.RolePermission{}).Error; err != nil {
			return fmt.Errorf("iam service: clear role permissions: %w", err)
		}
		for _, entry := range entries {
			row := models.RolePermission{
				RoleID:    roleID,
				FeatureID: entry.FeatureID,
				ActionID:  entry.ActionID,
				Allowed:   entry.Allowed,
			}
			if err := tx.Create(&row).Error; err != nil {
				if isUniqueConstraintError(err) {
					return apperrors.NewBadRequest("Duplicate feature/action pair in permission set")
				}
				return fmt.Errorf("iam service: create role permission: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordIamAudit(ctx, restaurantID, "iam.role.permissions.set", roleID, map[string]any{"count": len(entries)})
	return nil
}

// ---- user roles ----

// AssignUserRole grants a role to a restaurant member.
func (s *IamService) AssignUserRole(ctx context.Context, restaurantID, userID, roleID string) error {
	ctx = ensureContext(ctx)

	err := s.mutate(ctx, restaurantID, func(tx *gorm.DB) error {
		if err := requireMembership(tx, restaurantID, userID); err != nil {
			return err
		}
		if _, err := loadTenantOrSystemRole(tx, restaurantID, roleID); err != nil {
			return err
		}

		assignment := models.UserRole{
			UserID:       userID,
			RestaurantID: restaurantID,
			RoleID:       roleID,
		}
		if err := tx.Create(&assignment).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.NewConflict("User already holds this role")
			}
			return fmt.Errorf("iam service: assign role: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordIamAudit(ctx, restaurantID, "iam.user_role.assign", roleID, map[string]any{"user_id": userID})
	return nil
}

// RemoveUserRole revokes a role assignment.
func (s *IamService) RemoveUserRole(ctx context.Context, restaurantID, userID, roleID string) error {
	ctx = ensureContext(ctx)

	err := s.mutate(ctx, restaurantID, func(tx *gorm.DB) error {
		result := tx.Where("user_id = ? AND restaurant_id = ? AND role_id = ?", userID, restaurantID, roleID).
			Delete(&models.UserRole{})
		if result.Error != nil {
			return fmt.Errorf("iam service: remove role: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.NewNotFound("Role assignment not found")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordIamAudit(ctx, restaurantID, "iam.user_role.remove", roleID, map[string]any{"user_id": userID})
	return nil
}

// ---- user overrides ----

// OverrideInput is one user-specific allow or deny for a feature/action pair.
type OverrideInput struct {
	FeatureID string
	ActionID  string
	Allowed   bool
}

// GetUserOverrides returns a user's overrides in a restaurant with feature
// and action references preloaded.
func (s *IamService) GetUserOverrides(ctx context.Context, restaurantID, userID string) ([]models.UserPermissionOverride, error) {
	ctx = ensureContext(ctx)

	var rows []models.UserPermissionOverride
	err := s.db.WithContext(ctx).
		Preload("Feature").
		Preload("Action").
		Where("user_id = ? AND restaurant_id = ?", userID, restaurantID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("iam service: get overrides: %w", err)
	}
	return rows, nil
}

// SetUserOverrides replaces a user's entire override set in a restaurant.
func (s *IamService) SetUserOverrides(ctx context.Context, restaurantID, userID string, entries []OverrideInput) error {
	ctx = ensureContext(ctx)

	err := s.mutate(ctx, restaurantID, func(tx *gorm.DB) error {
		if err := requireMembership(tx, restaurantID, userID); err != nil {
			return err
		}
		if err := validatePermissionPairs(tx, pairsFromOverrideInputs(entries)); err != nil {
			return err
		}

		if err := tx.Where("user_id = ? AND restaurant_id = ?", userID, restaurantID).
			Delete(&models.UserPermissionOverride{}).Error; err != nil {
			return fmt.Errorf("iam service: clear overrides: %w", err)
		}
		for _, entry := range entries {
			row := models.UserPermissionOverride{
				UserID:       userID,
				RestaurantID: restaurantID,
				FeatureID:    entry.FeatureID,
				ActionID:     entry.ActionID,
				Allowed:      entry.Allowed,
			}
			if err := tx.Create(&row).Error; err != nil {
				if isUniqueConstraintError(err) {
					return apperrors.NewBadRequest("Duplicate feature/action pair in override set")
				}
				return fmt.Errorf("iam service: create override: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordIamAudit(ctx, restaurantID, "iam.override.set", userID, map[string]any{"count": len(entries)})
	return nil
}

// DeleteUserOverride removes a single override row.
func (s *IamService) DeleteUserOverride(ctx context.Context, restaurantID, userID, overrideID string) error {
	ctx = ensureContext(ctx)

	err := s.mutate(ctx, restaurantID, func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ? AND restaurant_id = ?", overrideID, userID, restaurantID).
			Delete(&models.UserPermissionOverride{})
		if result.Error != nil {
			return fmt.Errorf("iam service: delete override: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.NewNotFound("Override not found")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordIamAudit(ctx, restaurantID, "iam.override.delete", overrideID, map[string]any{"user_id": userID})
	return nil
}

// ---- entitlements ----

// EntitlementInput sets the status of one catalog node for a tenant.
type EntitlementInput struct {
	EntityType string
	EntityID   string
	Status     string
	Source     string
	Metadata   map[string]any
}

// ListEntitlements returns every entitlement row of a restaurant.
func (s *IamService) ListEntitlements(ctx context.Context, restaurantID string) ([]models.Entitlement, error) {
	ctx = ensureContext(ctx)

	var rows []models.Entitlement
	err := s.db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Order("entity_type ASC, entity_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("iam service: list entitlements: %w", err)
	}
	return rows, nil
}

// SetEntitlements upserts a batch of entitlement rows for a restaurant. Every
// referenced catalog entity must exist and every status must be valid.
func (s *IamService) SetEntitlements(ctx context.Context, restaurantID string, entries []EntitlementInput) error {
	ctx = ensureContext(ctx)

	if len(entries) == 0 {
		return apperrors.NewBadRequest("At least one entitlement entry is required")
	}

	err := s.mutate(ctx, restaurantID, func(tx *gorm.DB) error {
		for _, entry := range entries {
			if !iam.ValidEntityType(entry.EntityType) {
				return apperrors.NewBadRequest(fmt.Sprintf("Unknown entity type %q", entry.EntityType))
			}
			if !iam.EntitlementStatus(entry.Status).Valid() {
				return apperrors.NewBadRequest(fmt.Sprintf("Unknown entitlement status %q", entry.Status))
			}
			if err := requireCatalogEntity(tx, entry.EntityType, entry.EntityID); err != nil {
				return err
			}

			var metadata datatypes.JSON
			if entry.Metadata != nil {
				data, err := json.Marshal(entry.Metadata)
				if err != nil {
					return fmt.Errorf("iam service: marshal entitlement metadata: %w", err)
				}
				metadata = datatypes.JSON(data)
			}

			var existing models.Entitlement
			err := tx.Where("restaurant_id = ? AND entity_type = ? AND entity_id = ?",
				restaurantID, entry.EntityType, entry.EntityID).
				Take(&existing).Error
			switch {
			case err == nil:
				existing.Status = entry.Status
				existing.Source = strings.TrimSpace(entry.Source)
				existing.Metadata = metadata
				if err := tx.Save(&existing).Error; err != nil {
					return fmt.Errorf("iam service: update entitlement: %w", err)
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				row := models.Entitlement{
					RestaurantID: restaurantID,
					EntityType:   entry.EntityType,
					EntityID:     entry.EntityID,
					Status:       entry.Status,
					Source:       strings.TrimSpace(entry.Source),
					Metadata:     metadata,
				}
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("iam service: create entitlement: %w", err)
				}
			default:
				return fmt.Errorf("iam service: load entitlement: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordIamAudit(ctx, restaurantID, "iam.entitlement.set", "", map[string]any{"count": len(entries)})
	return nil
}

// RemoveEntitlement deletes one entitlement row, returning the catalog node
// to the default status policy.
func (s *IamService) RemoveEntitlement(ctx context.Context, restaurantID, entityType, entityID string) error {
	ctx = ensureContext(ctx)

	err := s.mutate(ctx, restaurantID, func(tx *gorm.DB) error {
		result := tx.Where("restaurant_id = ? AND entity_type = ? AND entity_id = ?", restaurantID, entityType, entityID).
			Delete(&models.Entitlement{})
		if result.Error != nil {
			return fmt.Errorf("iam service: remove entitlement: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.NewNotFound("Entitlement not found")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordIamAudit(ctx, restaurantID, "iam.entitlement.remove", entityID, map[string]any{"entity_type": entityType})
	return nil
}

// ---- internals ----

func (s *IamService) recordIamAudit(ctx context.Context, restaurantID, action, resource string, metadata map[string]any) {
	recordAudit(s.audit, ctx, AuditEntry{
		RestaurantID: &restaurantID,
		Action:       action,
		Resource:     resource,
		Result:       "success",
		Metadata:     metadata,
	})
}

// loadTenantRole loads a role owned by the restaurant. Cross-tenant role ids
// surface as NotFound so they leak nothing.
func loadTenantRole(tx *gorm.DB, restaurantID, roleID string) (*models.Role, error) {
	var role models.Role
	err := tx.Where("id = ? AND restaurant_id = ?", roleID, restaurantID).Take(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("Role not found")
		}
		return nil, fmt.Errorf("iam service: load role: %w", err)
	}
	return &role, nil
}

// loadTenantOrSystemRole accepts both tenant-owned roles and shared system roles.
func loadTenantOrSystemRole(tx *gorm.DB, restaurantID, roleID string) (*models.Role, error) {
	var role models.Role
	err := tx.Where("id = ? AND (restaurant_id = ? OR restaurant_id IS NULL)", roleID, restaurantID).Take(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("Role not found")
		}
		return nil, fmt.Errorf("iam service: load role: %w", err)
	}
	return &role, nil
}

func requireMembership(tx *gorm.DB, restaurantID, userID string) error {
	var count int64
	err := tx.Model(&models.UserRestaurant{}).
		Where("user_id = ? AND restaurant_id = ?", userID, restaurantID).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("iam service: check membership: %w", err)
	}
	if count == 0 {
		return apperrors.NewNotFound("User is not a member of this restaurant")
	}
	return nil
}

func requireCatalogEntity(tx *gorm.DB, entityType, entityID string) error {
	var (
		count int64
		err   error
	)
	switch entityType {
	case iam.EntityModule:
		err = tx.Model(&models.Module{}).Where("id = ?", entityID).Count(&count).Error
	case iam.EntitySubmodule:
		err = tx.Model(&models.Submodule{}).Where("id = ?", entityID).Count(&count).Error
	case iam.EntityFeature:
		err = tx.Model(&models.Feature{}).Where("id = ?", entityID).Count(&count).Error
	default:
		return apperrors.NewBadRequest(fmt.Sprintf("Unknown entity type %q", entityType))
	}
	if err != nil {
		return fmt.Errorf("iam service: check catalog entity: %w", err)
	}
	if count == 0 {
		return apperrors.NewNotFound(fmt.Sprintf("Catalog %s not found", entityType))
	}
	return nil
}

type permissionPair struct {
	featureID string
	actionID  string
}

func pairsFromRoleInputs(entries []RolePermissionInput) []permissionPair {
	pairs := make([]permissionPair, 0, len(entries))
	for _, entry := range entries {
		pairs = append(pairs, permissionPair{featureID: entry.FeatureID, actionID: entry.ActionID})
	}
	return pairs
}

func pairsFromOverrideInputs(entries []OverrideInput) []permissionPair {
	pairs := make([]permissionPair, 0, len(entries))
	for _, entry := range entries {
		pairs = append(pairs, permissionPair{featureID: entry.FeatureID, actionID: entry.ActionID})
	}
	return pairs
}

// validatePermissionPairs checks that every referenced feature and action
// exists before a permission set is replaced.
func validatePermissionPairs(tx *gorm.DB, pairs []permissionPair) error {
	featureIDs := make(map[string]struct{}, len(pairs))
	actionIDs := make(map[string]struct{}, len(pairs))
	for _, pair := range pairs {
		if strings.TrimSpace(pair.featureID) == "" || strings.TrimSpace(pair.actionID) == "" {
			return apperrors.NewBadRequest("Feature and action ids are required")
		}
		featureIDs[pair.featureID] = struct{}{}
		actionIDs[pair.actionID] = struct{}{}
	}

	if len(featureIDs) > 0 {
		ids := keysOf(featureIDs)
		var count int64
		if err := tx.Model(&models.Feature{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
			return fmt.Errorf("iam service: check features: %w", err)
		}
		if count != int64(len(ids)) {
			return apperrors.NewNotFound("Feature not found")
		}
	}
	if len(actionIDs) > 0 {
		ids := keysOf(actionIDs)
		var count int64
		if err := tx.Model(&models.Action{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
			return fmt.Errorf("iam service: check actions: %w", err)
		}
		if count != int64(len(ids)) {
			return apperrors.NewNotFound("Action not found")
		}
	}
	return nil
}

func keysOf(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	return out
}
