package iam

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apperrors "github.com/botecohq/boteco/pkg/errors"

	"github.com/botecohq/boteco/internal/cache"
	"github.com/botecohq/boteco/internal/database/testutil"
	"github.com/botecohq/boteco/internal/models"
)

type resolverFixture struct {
	db *gorm.DB

	restaurant models.Restaurant
	member     models.User
	owner      models.User
	admin      models.User
}

// newResolverFixture seeds one restaurant with the orders catalog slice, a
// waiter-style role held by member (tickets read allowed, create denied) and
// an override denying member read on reports.
func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	f := &resolverFixture{
		db:         db,
		restaurant: models.Restaurant{BaseModel: models.BaseModel{ID: "rest-1"}, Name: "Boteco da Praia", Slug: "boteco-da-praia"},
		member:     models.User{BaseModel: models.BaseModel{ID: "user-member"}, Email: "member@example.com", Name: "Member", PasswordHash: "x"},
		owner:      models.User{BaseModel: models.BaseModel{ID: "user-owner"}, Email: "owner@example.com", Name: "Owner", PasswordHash: "x"},
		admin:      models.User{BaseModel: models.BaseModel{ID: "user-admin"}, Email: "admin@example.com", Name: "Admin", PasswordHash: "x", IsSuperadmin: true},
	}

	require.NoError(t, db.Create(&f.restaurant).Error)
	require.NoError(t, db.Create(&f.member).Error)
	require.NoError(t, db.Create(&f.owner).Error)
	require.NoError(t, db.Create(&f.admin).Error)

	require.NoError(t, db.Create(&models.UserRestaurant{UserID: f.member.ID, RestaurantID: f.restaurant.ID}).Error)
	require.NoError(t, db.Create(&models.UserRestaurant{UserID: f.owner.ID, RestaurantID: f.restaurant.ID, IsOwner: true}).Error)

	module := models.Module{BaseModel: models.BaseModel{ID: "mod-orders"}, Key: "orders", Name: "Orders", Visible: true}
	require.NoError(t, db.Create(&module).Error)

	submodule := models.Submodule{BaseModel: models.BaseModel{ID: "sub-pos"}, ModuleID: module.ID, Key: "orders.pos", Name: "POS", Visible: true}
	require.NoError(t, db.Create(&submodule).Error)

	tickets := models.Feature{BaseModel: models.BaseModel{ID: "feat-tickets"}, SubmoduleID: &submodule.ID, Key: "orders.tickets", Name: "Tickets", Visible: true}
	require.NoError(t, db.Create(&tickets).Error)

	reports := models.Feature{BaseModel: models.BaseModel{ID: "feat-reports"}, ModuleID: &module.ID, Key: "orders.reports", Name: "Reports", Visible: true}
	require.NoError(t, db.Create(&reports).Error)

	require.NoError(t, db.Create(&models.Action{BaseModel: models.BaseModel{ID: "read"}, Key: "read", Name: "Read"}).Error)
	require.NoError(t, db.Create(&models.Action{BaseModel: models.BaseModel{ID: "create"}, Key: "create", Name: "Create", SortOrder: 1}).Error)

	role := models.Role{BaseModel: models.BaseModel{ID: "role-waiter"}, RestaurantID: &f.restaurant.ID, Key: "waiter", Name: "Waiter"}
	require.NoError(t, db.Create(&role).Error)
	require.NoError(t, db.Create(&models.RolePermission{RoleID: role.ID, FeatureID: tickets.ID, ActionID: "read", Allowed: true}).Error)
	require.NoError(t, db.Create(&models.RolePermission{RoleID: role.ID, FeatureID: tickets.ID, ActionID: "create", Allowed: false}).Error)
	require.NoError(t, db.Create(&models.UserRole{UserID: f.member.ID, RestaurantID: f.restaurant.ID, RoleID: role.ID}).Error)

	require.NoError(t, db.Create(&models.UserPermissionOverride{
		UserID:       f.member.ID,
		RestaurantID: f.restaurant.ID,
		FeatureID:    reports.ID,
		ActionID:     "read",
		Allowed:      false,
	}).Error)

	return f
}

func newTestStore(t *testing.T) cache.Store {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return cache.NewRedisStore(client)
}

func ticketsNode(t *testing.T, snap *Snapshot) FeatureNode {
	t.Helper()
	for _, mod := range snap.Modules {
		for _, sub := range mod.Submodules {
			for _, feature := range sub.Features {
				if feature.Key == "orders.tickets" {
					return feature
				}
			}
		}
	}
	t.Fatal("orders.tickets not found in snapshot")
	return FeatureNode{}
}

func TestResolver_Snapshot_BuildsTree(t *testing.T) {
	f := newResolverFixture(t)
	resolver := NewResolver(f.db, nil, nil)

	snap, err := resolver.Snapshot(context.Background(), f.restaurant.ID, f.member.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, snap.PermVersion)
	require.False(t, snap.IsOwner)

	tickets := ticketsNode(t, snap)
	read := findAction(t, tickets, "read")
	require.True(t, read.Allowed)
	require.Equal(t, ReasonRoleAllow, read.Reason)

	create := findAction(t, tickets, "create")
	require.False(t, create.Allowed)
	require.Equal(t, ReasonRoleDeny, create.Reason)
}

func TestResolver_Snapshot_CacheServesUntilVersionBump(t *testing.T) {
	f := newResolverFixture(t)
	resolver := NewResolver(f.db, newTestStore(t), nil)
	ctx := context.Background()

	snap, err := resolver.Snapshot(ctx, f.restaurant.ID, f.member.ID)
	require.NoError(t, err)
	require.True(t, findAction(t, ticketsNode(t, snap), "read").Allowed)

	// Remove the role grant without bumping the version. The cached snapshot
	// stays valid and keeps answering.
	require.NoError(t, f.db.Where("role_id = ?", "role-waiter").Delete(&models.RolePermission{}).Error)

	snap, err = resolver.Snapshot(ctx, f.restaurant.ID, f.member.ID)
	require.NoError(t, err)
	require.True(t, findAction(t, ticketsNode(t, snap), "read").Allowed)

	require.NoError(t, BumpPermVersion(ctx, f.db, f.restaurant.ID))

	snap, err = resolver.Snapshot(ctx, f.restaurant.ID, f.member.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, snap.PermVersion)

	read := findAction(t, ticketsNode(t, snap), "read")
	require.False(t, read.Allowed)
	require.Equal(t, ReasonNoRole, read.Reason)
}

func TestResolver_Snapshot_UnknownPrincipals(t *testing.T) {
	f := newResolverFixture(t)
	resolver := NewResolver(f.db, nil, nil)
	ctx := context.Background()

	_, err := resolver.Snapshot(ctx, "rest-missing", f.member.ID)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)

	_, err = resolver.Snapshot(ctx, f.restaurant.ID, "user-missing")
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)
}

func TestResolver_CheckPermission(t *testing.T) {
	f := newResolverFixture(t)
	resolver := NewResolver(f.db, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name       string
		userID     string
		featureKey string
		actionKey  string
		want       Decision
	}{
		{"role allow", f.member.ID, "orders.tickets", "read", Decision{Allowed: true, Reason: ReasonRoleAllow}},
		{"role deny", f.member.ID, "orders.tickets", "create", Decision{Allowed: false, Reason: ReasonRoleDeny}},
		{"override deny beats default", f.member.ID, "orders.reports", "read", Decision{Allowed: false, Reason: ReasonUserDeny}},
		{"no role", f.member.ID, "orders.reports", "create", Decision{Allowed: false, Reason: ReasonNoRole}},
		{"owner", f.owner.ID, "orders.tickets", "create", Decision{Allowed: true, Reason: ReasonOwner}},
		{"superadmin", f.admin.ID, "orders.tickets", "create", Decision{Allowed: true, Reason: ReasonSuperadmin}},
		{"unknown feature", f.member.ID, "orders.nope", "read", Decision{Allowed: false, Reason: ReasonFeatureNotFound}},
		{"unknown action", f.member.ID, "orders.tickets", "approve", Decision{Allowed: false, Reason: ReasonActionNotFound}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := resolver.CheckPermission(ctx, f.restaurant.ID, tt.userID, tt.featureKey, tt.actionKey)
			require.NoError(t, err)
			require.Equal(t, tt.want, decision)
		})
	}
}

func TestResolver_CheckPermission_LockedModule(t *testing.T) {
	f := newResolverFixture(t)
	resolver := NewResolver(f.db, nil, nil)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&models.Entitlement{
		RestaurantID: f.restaurant.ID,
		EntityType:   EntityModule,
		EntityID:     "mod-orders",
		Status:       string(StatusLocked),
	}).Error)

	decision, err := resolver.CheckPermission(ctx, f.restaurant.ID, f.member.ID, "orders.tickets", "read")
	require.NoError(t, err)
	require.Equal(t, Decision{Allowed: false, Locked: true, Reason: ReasonLocked}, decision)

	decision, err = resolver.CheckPermission(ctx, f.restaurant.ID, f.owner.ID, "orders.tickets", "read")
	require.NoError(t, err)
	require.Equal(t, Decision{Allowed: false, Locked: true, Reason: ReasonLocked}, decision)

	decision, err = resolver.CheckPermission(ctx, f.restaurant.ID, f.admin.ID, "orders.tickets", "read")
	require.NoError(t, err)
	require.Equal(t, Decision{Allowed: true, Reason: ReasonSuperadmin}, decision)
}

func TestResolver_CheckPermission_UnknownUser(t *testing.T) {
	f := newResolverFixture(t)
	resolver := NewResolver(f.db, nil, nil)

	_, err := resolver.CheckPermission(context.Background(), f.restaurant.ID, "user-missing", "orders.tickets", "read")
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)
}

func TestResolver_PointQueryMatchesSnapshot(t *testing.T) {
	f := newResolverFixture(t)
	resolver := NewResolver(f.db, nil, nil)
	ctx := context.Background()

	for _, userID := range []string{f.member.ID, f.owner.ID, f.admin.ID} {
		snap, err := resolver.Snapshot(ctx, f.restaurant.ID, userID)
		require.NoError(t, err)

		tickets := ticketsNode(t, snap)
		for _, action := range tickets.Actions {
			decision, err := resolver.CheckPermission(ctx, f.restaurant.ID, userID, tickets.Key, action.Key)
			require.NoError(t, err)
			require.Equal(t, action.Allowed, decision.Allowed,
				"user %s action %s: snapshot and point query disagree", userID, action.Key)
		}
	}
}
