package api

import (
	"github.com/gin-gonic/gin"

	"github.com/botecohq/boteco/internal/handlers"
	"github.com/botecohq/boteco/internal/middleware"
)

func registerIamRoutes(api *gin.RouterGroup, deps Deps) error {
	iamHandler := handlers.NewIamHandler(deps.Resolver, deps.Iam)

	auditHandler, err := handlers.NewAuditHandler(deps.DB)
	if err != nil {
		return err
	}

	// Catalog is tenant-independent reference data, readable by any
	// authenticated user.
	api.GET("/iam/catalog", iamHandler.Catalog)
	api.GET("/iam/actions", iamHandler.Actions)

	tenant := api.Group("/restaurants/:restaurantId/iam")

	// Every member resolves their own permissions.
	tenant.GET("/snapshot", iamHandler.Snapshot)
	tenant.POST("/check", iamHandler.Check)

	// Role and override management is restricted to owners and superadmins.
	admin := tenant.Group("")
	admin.Use(middleware.RequireTenantAdmin(deps.DB))
	{
		admin.GET("/roles", iamHandler.ListRoles)
		admin.POST("/roles", iamHandler.CreateRole)
		admin.PATCH("/roles/:roleId", iamHandler.UpdateRole)
		admin.DELETE("/roles/:roleId", iamHandler.DeleteRole)
		admin.GET("/roles/:roleId/permissions", iamHandler.GetRolePermissions)
		admin.PUT("/roles/:roleId/permissions", iamHandler.SetRolePermissions)

		admin.POST("/users/:userId/roles", iamHandler.AssignUserRole)
		admin.DELETE("/users/:userId/roles/:roleId", iamHandler.RemoveUserRole)

		admin.GET("/users/:userId/overrides", iamHandler.GetUserOverrides)
		admin.PUT("/users/:userId/overrides", iamHandler.SetUserOverrides)
		admin.DELETE("/users/:userId/overrides/:overrideId", iamHandler.DeleteUserOverride)

		admin.GET("/audit", auditHandler.List)
	}

	// Entitlements are billing-driven platform state.
	super := tenant.Group("/entitlements")
	super.Use(middleware.RequireSuperadmin())
	{
		super.GET("", iamHandler.ListEntitlements)
		super.PUT("", iamHandler.SetEntitlements)
		super.DELETE("/:entityType/:entityId", iamHandler.RemoveEntitlement)
	}

	return nil
}
