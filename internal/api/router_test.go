package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/botecohq/boteco/internal/app"
	iauth "github.com/botecohq/boteco/internal/auth"
	"github.com/botecohq/boteco/internal/database/testutil"
	"github.com/botecohq/boteco/internal/iam"
	"github.com/botecohq/boteco/internal/models"
	"github.com/botecohq/boteco/internal/services"
)

type routerFixture struct {
	router *gin.Engine
	db     *gorm.DB
	jwt    *iauth.JWTService

	restaurant models.Restaurant
	owner      models.User
	waiter     models.User
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "boteco"})
	require.NoError(t, err)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	iamSvc, err := services.NewIamService(db, audit, nil, nil, nil)
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Monitoring.Health.Enabled = true

	router, err := NewRouter(Deps{
		DB:       db,
		JWT:      jwt,
		Resolver: iam.NewResolver(db, nil, nil),
		Iam:      iamSvc,
		Audit:    audit,
		Config:   cfg,
	})
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("caipirinha"), bcrypt.MinCost)
	require.NoError(t, err)

	f := &routerFixture{
		router:     router,
		db:         db,
		jwt:        jwt,
		restaurant: models.Restaurant{BaseModel: models.BaseModel{ID: "rest-1"}, Name: "Boteco", Slug: "boteco"},
		owner:      models.User{BaseModel: models.BaseModel{ID: "user-owner"}, Email: "owner@example.com", Name: "Owner", PasswordHash: string(hash), Active: true},
		waiter:     models.User{BaseModel: models.BaseModel{ID: "user-waiter"}, Email: "waiter@example.com", Name: "Waiter", PasswordHash: string(hash), Active: true},
	}

	require.NoError(t, db.Create(&f.restaurant).Error)
	require.NoError(t, db.Create(&f.owner).Error)
	require.NoError(t, db.Create(&f.waiter).Error)
	require.NoError(t, db.Create(&models.UserRestaurant{UserID: f.owner.ID, RestaurantID: f.restaurant.ID, IsOwner: true}).Error)
	require.NoError(t, db.Create(&models.UserRestaurant{UserID: f.waiter.ID, RestaurantID: f.restaurant.ID}).Error)

	return f
}

func (f *routerFixture) tokenFor(t *testing.T, user models.User) string {
	t.Helper()
	token, err := f.jwt.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:       user.ID,
		Email:        user.Email,
		IsSuperadmin: user.IsSuperadmin,
	})
	require.NoError(t, err)
	return token
}

func (f *routerFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(data)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRouter_LoginFlow(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "owner@example.com",
		"password": "caipirinha",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "access_token")

	rec = f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "owner@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_SnapshotRequiresAuth(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/api/restaurants/rest-1/iam/snapshot", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/restaurants/rest-1/iam/snapshot", f.tokenFor(t, f.waiter), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Data iam.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "rest-1", payload.Data.RestaurantID)
	require.NotEmpty(t, payload.Data.Modules, "seeded catalog should appear in the snapshot")
}

func TestRouter_RoleManagementRequiresOwner(t *testing.T) {
	f := newRouterFixture(t)

	body := gin.H{"key": "host", "name": "Host"}

	rec := f.do(t, http.MethodPost, "/api/restaurants/rest-1/iam/roles", f.tokenFor(t, f.waiter), body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/restaurants/rest-1/iam/roles", f.tokenFor(t, f.owner), body)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestRouter_EntitlementsRequireSuperadmin(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/api/restaurants/rest-1/iam/entitlements", f.tokenFor(t, f.owner), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	admin := models.User{BaseModel: models.BaseModel{ID: "user-admin"}, Email: "admin@example.com", Name: "Admin", PasswordHash: "x", IsSuperadmin: true}
	require.NoError(t, f.db.Create(&admin).Error)

	rec = f.do(t, http.MethodGet, "/api/restaurants/rest-1/iam/entitlements", f.tokenFor(t, admin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_CheckPermission(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodPost, "/api/restaurants/rest-1/iam/check", f.tokenFor(t, f.owner), gin.H{
		"feature_key": "orders.tickets",
		"action_key":  "read",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Data iam.Decision `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.True(t, payload.Data.Allowed)
	require.Equal(t, iam.ReasonOwner, payload.Data.Reason)
}
