package iam

// EntitlementStatus describes whether a catalog node is usable by a tenant.
type EntitlementStatus string

const (
	StatusActive EntitlementStatus = "active"
	StatusLocked EntitlementStatus = "locked"
	StatusHidden EntitlementStatus = "hidden"
	StatusTrial  EntitlementStatus = "trial"
)

// DefaultEntitlementStatus is the effective status of a catalog node when no
// entitlement row exists at any level of its ancestry. The snapshot builder
// and the point query both apply this constant, so flipping it to
// StatusLocked switches the whole engine to deny-by-default.
const DefaultEntitlementStatus = StatusActive

// Unlocked reports whether the status permits use of the node.
func (s EntitlementStatus) Unlocked() bool {
	return s == StatusActive || s == StatusTrial
}

// Valid reports whether the status is part of the known vocabulary.
func (s EntitlementStatus) Valid() bool {
	switch s {
	case StatusActive, StatusLocked, StatusHidden, StatusTrial:
		return true
	}
	return false
}

// Entity types an entitlement may attach to.
const (
	EntityModule    = "module"
	EntitySubmodule = "submodule"
	EntityFeature   = "feature"
)

// ValidEntityType reports whether the supplied entity type is known.
func ValidEntityType(entityType string) bool {
	switch entityType {
	case EntityModule, EntitySubmodule, EntityFeature:
		return true
	}
	return false
}

// EntityRef identifies a catalog node an entitlement refers to.
type EntityRef struct {
	Type string
	ID   string
}
