package iam

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/botecohq/boteco/internal/models"
)

func strPtr(s string) *string { return &s }

// buildTestInput wires a small catalog: module "orders" holding submodule
// "orders.pos" with feature "orders.tickets", plus the directly attached
// feature "orders.reports". Two actions: read and create.
func buildTestInput() BuildInput {
	tickets := models.Feature{
		BaseModel:   models.BaseModel{ID: "feat-tickets"},
		SubmoduleID: strPtr("sub-pos"),
		Key:         "orders.tickets",
		Name:        "Tickets",
		Visible:     true,
	}
	reports := models.Feature{
		BaseModel: models.BaseModel{ID: "feat-reports"},
		ModuleID:  strPtr("mod-orders"),
		Key:       "orders.reports",
		Name:      "Reports",
		Visible:   true,
	}

	return BuildInput{
		RestaurantID: "rest-1",
		UserID:       "user-1",
		PermVersion:  3,
		Modules: []models.Module{
			{
				BaseModel: models.BaseModel{ID: "mod-orders"},
				Key:       "orders",
				Name:      "Orders",
				Visible:   true,
				Submodules: []models.Submodule{
					{
						BaseModel: models.BaseModel{ID: "sub-pos"},
						ModuleID:  "mod-orders",
						Key:       "orders.pos",
						Name:      "POS",
						Visible:   true,
						Features:  []models.Feature{tickets},
					},
				},
				Features: []models.Feature{reports},
			},
		},
		Actions: []models.Action{
			{BaseModel: models.BaseModel{ID: "read"}, Key: "read"},
			{BaseModel: models.BaseModel{ID: "create"}, Key: "create"},
		},
		Entitlements:    map[EntityRef]EntitlementStatus{},
		RolePermissions: map[PermKey]bool{},
		Overrides:       map[PermKey]bool{},
	}
}

func findAction(t *testing.T, feature FeatureNode, key string) ActionDecision {
	t.Helper()
	for _, action := range feature.Actions {
		if action.Key == key {
			return action
		}
	}
	t.Fatalf("action %q not found on feature %q", key, feature.Key)
	return ActionDecision{}
}

func TestBuildSnapshot_DefaultDeny(t *testing.T) {
	snap := BuildSnapshot(buildTestInput())

	require.Equal(t, "rest-1", snap.RestaurantID)
	require.EqualValues(t, 3, snap.PermVersion)
	require.Len(t, snap.Modules, 1)

	mod := snap.Modules[0]
	require.Equal(t, StatusActive, mod.Status)
	require.False(t, mod.Locked)
	require.Len(t, mod.Submodules, 1)
	require.Len(t, mod.Features, 1)

	tickets := mod.Submodules[0].Features[0]
	for _, action := range tickets.Actions {
		require.False(t, action.Allowed)
		require.Equal(t, ReasonNoRole, action.Reason)
	}
}

func TestBuildSnapshot_RoleAndOverridePrecedence(t *testing.T) {
	in := buildTestInput()
	in.RolePermissions[PermKey{FeatureID: "feat-tickets", ActionID: "read"}] = true
	in.RolePermissions[PermKey{FeatureID: "feat-tickets", ActionID: "create"}] = false
	in.Overrides[PermKey{FeatureID: "feat-reports", ActionID: "read"}] = false

	snap := BuildSnapshot(in)
	tickets := snap.Modules[0].Submodules[0].Features[0]
	reports := snap.Modules[0].Features[0]

	read := findAction(t, tickets, "read")
	require.True(t, read.Allowed)
	require.Equal(t, ReasonRoleAllow, read.Reason)

	create := findAction(t, tickets, "create")
	require.False(t, create.Allowed)
	require.Equal(t, ReasonRoleDeny, create.Reason)

	reportsRead := findAction(t, reports, "read")
	require.False(t, reportsRead.Allowed)
	require.Equal(t, ReasonUserDeny, reportsRead.Reason)
}

func TestBuildSnapshot_OverrideBeatsRole(t *testing.T) {
	in := buildTestInput()
	in.RolePermissions[PermKey{FeatureID: "feat-tickets", ActionID: "create"}] = false
	in.Overrides[PermKey{FeatureID: "feat-tickets", ActionID: "create"}] = true

	snap := BuildSnapshot(in)
	create := findAction(t, snap.Modules[0].Submodules[0].Features[0], "create")
	require.True(t, create.Allowed)
	require.Equal(t, ReasonUserAllow, create.Reason)
}

func TestBuildSnapshot_OwnerAllowsEverythingUnlocked(t *testing.T) {
	in := buildTestInput()
	in.IsOwner = true
	in.Overrides[PermKey{FeatureID: "feat-tickets", ActionID: "read"}] = false

	snap := BuildSnapshot(in)
	require.True(t, snap.IsOwner)

	read := findAction(t, snap.Modules[0].Submodules[0].Features[0], "read")
	require.True(t, read.Allowed)
	require.Equal(t, ReasonOwner, read.Reason)
}

func TestBuildSnapshot_ModuleLockPropagates(t *testing.T) {
	in := buildTestInput()
	in.RolePermissions[PermKey{FeatureID: "feat-tickets", ActionID: "read"}] = true
	in.IsOwner = true
	in.Entitlements[EntityRef{Type: EntityModule, ID: "mod-orders"}] = StatusLocked

	snap := BuildSnapshot(in)
	mod := snap.Modules[0]
	require.True(t, mod.Locked)
	require.Equal(t, StatusLocked, mod.Status)

	sub := mod.Submodules[0]
	require.True(t, sub.Locked)
	require.Equal(t, StatusActive, sub.Status)

	for _, feature := range []FeatureNode{sub.Features[0], mod.Features[0]} {
		require.True(t, feature.Locked)
		for _, action := range feature.Actions {
			require.False(t, action.Allowed)
			require.Equal(t, ReasonEntitlementLocked, action.Reason)
		}
	}
}

func TestBuildSnapshot_FeatureLockIsLocal(t *testing.T) {
	in := buildTestInput()
	in.Entitlements[EntityRef{Type: EntityFeature, ID: "feat-tickets"}] = StatusHidden
	in.RolePermissions[PermKey{FeatureID: "feat-reports", ActionID: "read"}] = true

	snap := BuildSnapshot(in)
	mod := snap.Modules[0]
	require.False(t, mod.Locked)

	tickets := mod.Submodules[0].Features[0]
	require.True(t, tickets.Locked)
	require.Equal(t, StatusHidden, tickets.Status)

	reports := mod.Features[0]
	require.False(t, reports.Locked)
	read := findAction(t, reports, "read")
	require.True(t, read.Allowed)
}

func TestBuildSnapshot_TrialCountsAsUnlocked(t *testing.T) {
	in := buildTestInput()
	in.Entitlements[EntityRef{Type: EntityModule, ID: "mod-orders"}] = StatusTrial
	in.RolePermissions[PermKey{FeatureID: "feat-tickets", ActionID: "read"}] = true

	snap := BuildSnapshot(in)
	mod := snap.Modules[0]
	require.False(t, mod.Locked)
	require.Equal(t, StatusTrial, mod.Status)

	read := findAction(t, mod.Submodules[0].Features[0], "read")
	require.True(t, read.Allowed)
}

func TestBuildSnapshot_SuperadminBypassesLock(t *testing.T) {
	in := buildTestInput()
	in.IsSuperadmin = true
	in.Entitlements[EntityRef{Type: EntityModule, ID: "mod-orders"}] = StatusLocked

	snap := BuildSnapshot(in)
	require.True(t, snap.IsSuperadmin)

	mod := snap.Modules[0]
	require.True(t, mod.Locked)

	for _, action := range mod.Submodules[0].Features[0].Actions {
		require.True(t, action.Allowed)
		require.Equal(t, ReasonSuperadmin, action.Reason)
	}
}
