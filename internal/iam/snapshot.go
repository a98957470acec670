package iam

// Decision reasons reported to callers. The calling layer renders these as
// informative "locked"/"forbidden" UI states, so the vocabulary is part of
// the API contract.
const (
	ReasonSuperadmin         = "superadmin"
	ReasonOwner              = "owner"
	ReasonUserAllow          = "user-allow"
	ReasonUserDeny           = "user-deny"
	ReasonRoleAllow          = "role-allow"
	ReasonRoleDeny           = "role-deny"
	ReasonNoRole             = "no-role"
	ReasonLocked             = "locked"
	ReasonEntitlementLocked  = "entitlement-locked"
	ReasonEntitlementMissing = "entitlement-missing"
	ReasonFeatureNotFound    = "feature-not-found"
	ReasonActionNotFound     = "action-not-found"
)

// Decision is the result of a single permission point query.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Locked  bool   `json:"locked"`
	Reason  string `json:"reason"`
}

// ActionDecision is one action's resolved permission on a feature node.
type ActionDecision struct {
	ID      string `json:"id"`
	Key     string `json:"key"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// FeatureNode is the permission-bearing leaf of a snapshot tree.
type FeatureNode struct {
	ID        string            `json:"id"`
	Key       string            `json:"key"`
	Name      string            `json:"name"`
	SortOrder int               `json:"sort_order"`
	Visible   bool              `json:"visible"`
	Status    EntitlementStatus `json:"status"`
	Locked    bool              `json:"locked"`
	Actions   []ActionDecision  `json:"actions"`
}

// SubmoduleNode groups features beneath a module in a snapshot tree.
type SubmoduleNode struct {
	ID        string            `json:"id"`
	Key       string            `json:"key"`
	Name      string            `json:"name"`
	SortOrder int               `json:"sort_order"`
	Visible   bool              `json:"visible"`
	Status    EntitlementStatus `json:"status"`
	Locked    bool              `json:"locked"`
	Features  []FeatureNode     `json:"features"`
}

// ModuleNode is the top level of a snapshot tree. Features may attach here
// directly when they bypass the submodule level.
type ModuleNode struct {
	ID         string            `json:"id"`
	Key        string            `json:"key"`
	Name       string            `json:"name"`
	SortOrder  int               `json:"sort_order"`
	Visible    bool              `json:"visible"`
	Status     EntitlementStatus `json:"status"`
	Locked     bool              `json:"locked"`
	Submodules []SubmoduleNode   `json:"submodules"`
	Features   []FeatureNode     `json:"features,omitempty"`
}

// Snapshot is the full precomputed permission tree for one user in one
// restaurant. It is derived, cached data tagged with the permission version
// it was built against; a version mismatch invalidates it.
type Snapshot struct {
	RestaurantID string       `json:"restaurant_id"`
	UserID       string       `json:"user_id"`
	PermVersion  int64        `json:"perm_version"`
	IsSuperadmin bool         `json:"is_superadmin"`
	IsOwner      bool         `json:"is_owner"`
	Modules      []ModuleNode `json:"modules"`
}
