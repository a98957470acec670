package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/botecohq/boteco/internal/iam"
	"github.com/botecohq/boteco/internal/middleware"
	"github.com/botecohq/boteco/internal/services"
	appErrors "github.com/botecohq/boteco/pkg/errors"
	"github.com/botecohq/boteco/pkg/response"
)

// IamHandler exposes the permission engine over HTTP: snapshots, point
// queries, and the mutation surface for roles, overrides and entitlements.
type IamHandler struct {
	resolver *iam.Resolver
	svc      *services.IamService
}

func NewIamHandler(resolver *iam.Resolver, svc *services.IamService) *IamHandler {
	return &IamHandler{resolver: resolver, svc: svc}
}

// GET /api/restaurants/:restaurantId/iam/snapshot
func (h *IamHandler) Snapshot(c *gin.Context) {
	restaurantID := c.Param("restaurantId")
	userID := c.GetString(middleware.CtxUserIDKey)

	// Superadmins may inspect another user's snapshot.
	if target := c.Query("user_id"); target != "" && target != userID {
		if !c.GetBool(middleware.CtxSuperadminKey) {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		userID = target
	}

	snapshot, err := h.resolver.Snapshot(requestContext(c), restaurantID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, snapshot)
}

type checkRequest struct {
	FeatureKey string `json:"feature_key" validate:"required"`
	ActionKey  string `json:"action_key" validate:"required"`
}

// POST /api/restaurants/:restaurantId/iam/check
func (h *IamHandler) Check(c *gin.Context) {
	var req checkRequest
	if !bindAndValidate(c, &req) {
		return
	}

	decision, err := h.resolver.CheckPermission(
		requestContext(c),
		c.Param("restaurantId"),
		c.GetString(middleware.CtxUserIDKey),
		req.FeatureKey,
		req.ActionKey,
	)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, decision)
}

// GET /api/iam/catalog
func (h *IamHandler) Catalog(c *gin.Context) {
	modules, err := h.svc.ListCatalog(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, modules)
}

// GET /api/iam/actions
func (h *IamHandler) Actions(c *gin.Context) {
	actions, err := h.svc.ListActions(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, actions)
}

// ---- roles ----

// GET /api/restaurants/:restaurantId/iam/roles
func (h *IamHandler) ListRoles(c *gin.Context) {
	roles, err := h.svc.ListRoles(requestContext(c), c.Param("restaurantId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, roles)
}

type createRoleRequest struct {
	Key  string `json:"key" validate:"required,min=2,max=64"`
	Name string `json:"name" validate:"required,min=2,max=128"`
}

// POST /api/restaurants/:restaurantId/iam/roles
func (h *IamHandler) CreateRole(c *gin.Context) {
	var req createRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	role, err := h.svc.CreateRole(requestContext(c), c.Param("restaurantId"), services.CreateRoleInput{
		Key:  req.Key,
		Name: req.Name,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, role)
}

type updateRoleRequest struct {
	Name *string `json:"name" validate:"omitempty,min=2,max=128"`
}

// PATCH /api/restaurants/:restaurantId/iam/roles/:roleId
func (h *IamHandler) UpdateRole(c *gin.Context) {
	var req updateRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	role, err := h.svc.UpdateRole(requestContext(c), c.Param("restaurantId"), c.Param("roleId"),
		services.UpdateRoleInput{Name: req.Name})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}

// DELETE /api/restaurants/:restaurantId/iam/roles/:roleId
func (h *IamHandler) DeleteRole(c *gin.Context) {
	if err := h.svc.DeleteRole(requestContext(c), c.Param("restaurantId"), c.Param("roleId")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/restaurants/:restaurantId/iam/roles/:roleId/permissions
func (h *IamHandler) GetRolePermissions(c *gin.Context) {
	rows, err := h.svc.GetRolePermissions(requestContext(c), c.Param("restaurantId"), c.Param("roleId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

type rolePermissionEntry struct {
	FeatureID string `json:"feature_id" validate:"required"`
	ActionID  string `json:"action_id" validate:"required"`
	Allowed   bool   `json:"allowed"`
}

type setRolePermissionsRequest struct {
	Permissions []rolePermissionEntry `json:"permissions" validate:"required,dive"`
}

// PUT /api/restaurants/:restaurantId/iam/roles/:roleId/permissions
func (h *IamHandler) SetRolePermissions(c *gin.Context) {
	var req setRolePermissionsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	entries := make([]services.RolePermissionInput, 0, len(req.Permissions))
	for _, entry := range req.Permissions {
		entries = append(entries, services.RolePermissionInput{
			FeatureID: entry.FeatureID,
			ActionID:  entry.ActionID,
			Allowed:   entry.Allowed,
		})
	}

	if err := h.svc.SetRolePermissions(requestContext(c), c.Param("restaurantId"), c.Param("roleId"), entries); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"count": len(entries)})
}

// ---- user roles ----

type assignRoleRequest struct {
	RoleID string `json:"role_id" validate:"required"`
}

// POST /api/restaurants/:restaurantId/iam/users/:userId/roles
func (h *IamHandler) AssignUserRole(c *gin.Context) {
	var req assignRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.svc.AssignUserRole(requestContext(c), c.Param("restaurantId"), c.Param("userId"), req.RoleID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"assigned": true})
}

// DELETE /api/restaurants/:restaurantId/iam/users/:userId/roles/:roleId
func (h *IamHandler) RemoveUserRole(c *gin.Context) {
	err := h.svc.RemoveUserRole(requestContext(c), c.Param("restaurantId"), c.Param("userId"), c.Param("roleId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// ---- user overrides ----

// GET /api/restaurants/:restaurantId/iam/users/:userId/overrides
func (h *IamHandler) GetUserOverrides(c *gin.Context) {
	rows, err := h.svc.GetUserOverrides(requestContext(c), c.Param("restaurantId"), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

type overrideEntry struct {
	FeatureID string `json:"feature_id" validate:"required"`
	ActionID  string `json:"action_id" validate:"required"`
	Allowed   bool   `json:"allowed"`
}

type setOverridesRequest struct {
	Overrides []overrideEntry `json:"overrides" validate:"dive"`
}

// PUT /api/restaurants/:restaurantId/iam/users/:userId/overrides
func (h *IamHandler) SetUserOverrides(c *gin.Context) {
	var req setOverridesRequest
	if !bindAndValidate(c, &req) {
		return
	}

	entries := make([]services.OverrideInput, 0, len(req.Overrides))
	for _, entry := range req.Overrides {
		entries = append(entries, services.OverrideInput{
			FeatureID: entry.FeatureID,
			ActionID:  entry.ActionID,
			Allowed:   entry.Allowed,
		})
	}

	err := h.svc.SetUserOverrides(requestContext(c), c.Param("restaurantId"), c.Param("userId"), entries)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"count": len(entries)})
}

// DELETE /api/restaurants/:restaurantId/iam/users/:userId/overrides/:overrideId
func (h *IamHandler) DeleteUserOverride(c *gin.Context) {
	err := h.svc.DeleteUserOverride(requestContext(c), c.Param("restaurantId"), c.Param("userId"), c.Param("overrideId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// ---- entitlements ----

// GET /api/restaurants/:restaurantId/iam/entitlements
func (h *IamHandler) ListEntitlements(c *gin.Context) {
	rows, err := h.svc.ListEntitlements(requestContext(c), c.Param("restaurantId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

type entitlementEntry struct {
	EntityType string         `json:"entity_type" validate:"required,oneof=module submodule feature"`
	EntityID   string         `json:"entity_id" validate:"required"`
	Status     string         `json:"status" validate:"required,oneof=active locked hidden trial"`
	Source     string         `json:"source"`
	Metadata   map[string]any `json:"metadata"`
}

type setEntitlementsRequest struct {
	Entitlements []entitlementEntry `json:"entitlements" validate:"required,min=1,dive"`
}

// PUT /api/restaurants/:restaurantId/iam/entitlements
func (h *IamHandler) SetEntitlements(c *gin.Context) {
	var req setEntitlementsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	entries := make([]services.EntitlementInput, 0, len(req.Entitlements))
	for _, entry := range req.Entitlements {
		entries = append(entries, services.EntitlementInput{
			EntityType: entry.EntityType,
			EntityID:   entry.EntityID,
			Status:     entry.Status,
			Source:     entry.Source,
			Metadata:   entry.Metadata,
		})
	}

	if err := h.svc.SetEntitlements(requestContext(c), c.Param("restaurantId"), entries); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"count": len(entries)})
}

// DELETE /api/restaurants/:restaurantId/iam/entitlements/:entityType/:entityId
func (h *IamHandler) RemoveEntitlement(c *gin.Context) {
	err := h.svc.RemoveEntitlement(requestContext(c), c.Param("restaurantId"), c.Param("entityType"), c.Param("entityId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
