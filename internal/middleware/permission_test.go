package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/botecohq/boteco/internal/database/testutil"
	"github.com/botecohq/boteco/internal/iam"
	"github.com/botecohq/boteco/internal/models"
)

func newPermissionRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	restaurant := models.Restaurant{BaseModel: models.BaseModel{ID: "rest-1"}, Name: "Boteco", Slug: "boteco"}
	require.NoError(t, db.Create(&restaurant).Error)

	user := models.User{BaseModel: models.BaseModel{ID: "user-1"}, Email: "u@example.com", Name: "U", PasswordHash: "x"}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&models.UserRestaurant{UserID: user.ID, RestaurantID: restaurant.ID}).Error)

	module := models.Module{BaseModel: models.BaseModel{ID: "mod-orders"}, Key: "orders", Name: "Orders", Visible: true}
	require.NoError(t, db.Create(&module).Error)
	feature := models.Feature{BaseModel: models.BaseModel{ID: "feat-tickets"}, ModuleID: &module.ID, Key: "orders.tickets", Name: "Tickets", Visible: true}
	require.NoError(t, db.Create(&feature).Error)
	require.NoError(t, db.Create(&models.Action{BaseModel: models.BaseModel{ID: "read"}, Key: "read", Name: "Read"}).Error)
	require.NoError(t, db.Create(&models.Action{BaseModel: models.BaseModel{ID: "create"}, Key: "create", Name: "Create"}).Error)

	role := models.Role{BaseModel: models.BaseModel{ID: "role-1"}, RestaurantID: &restaurant.ID, Key: "waiter", Name: "Waiter"}
	require.NoError(t, db.Create(&role).Error)
	require.NoError(t, db.Create(&models.RolePermission{RoleID: role.ID, FeatureID: feature.ID, ActionID: "read", Allowed: true}).Error)
	require.NoError(t, db.Create(&models.UserRole{UserID: user.ID, RestaurantID: restaurant.ID, RoleID: role.ID}).Error)

	resolver := iam.NewResolver(db, nil, nil)

	router := gin.New()
	setUser := func(c *gin.Context) { c.Set(CtxUserIDKey, "user-1") }
	router.GET("/tickets", setUser, RequirePermission(resolver, "orders.tickets", "read"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.POST("/tickets", setUser, RequirePermission(resolver, "orders.tickets", "create"), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	return router
}

func TestRequirePermission_Allowed(t *testing.T) {
	router := newPermissionRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tickets", nil)
	req.Header.Set(RestaurantIDHeader, "rest-1")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequirePermission_DeniedWithReason(t *testing.T) {
	router := newPermissionRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tickets", nil)
	req.Header.Set(RestaurantIDHeader, "rest-1")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), iam.ReasonNoRole)
}

func TestRequirePermission_MissingRestaurant(t *testing.T) {
	router := newPermissionRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tickets", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequirePermission_UnknownRestaurant(t *testing.T) {
	router := newPermissionRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tickets", nil)
	req.Header.Set(RestaurantIDHeader, "rest-missing")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
