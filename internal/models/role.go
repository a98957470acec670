package models

// Role belongs to exactly one restaurant; system roles are tenant-null and
// seeded at migration time.
type Role struct {
	BaseModel

	RestaurantID *string `gorm:"type:uuid;uniqueIndex:idx_role_key;index" json:"restaurant_id,omitempty"`
	Key          string  `gorm:"not null;uniqueIndex:idx_role_key" json:"key"`
	Name         string  `gorm:"not null" json:"name"`
	IsSystem     bool    `gorm:"default:false" json:"is_system"`

	Permissions []RolePermission `gorm:"foreignKey:RoleID" json:"permissions,omitempty"`
}

// RolePermission is an explicit allow or deny for one (feature, action) pair.
// Absence of a row means the role has no opinion, not an implicit deny.
type RolePermission struct {
	BaseModel

	RoleID    string `gorm:"type:uuid;not null;uniqueIndex:idx_role_perm" json:"role_id"`
	FeatureID string `gorm:"type:uuid;not null;uniqueIndex:idx_role_perm" json:"feature_id"`
	ActionID  string `gorm:"type:uuid;not null;uniqueIndex:idx_role_perm" json:"action_id"`
	Allowed   bool   `gorm:"not null" json:"allowed"`

	Feature *Feature `gorm:"foreignKey:FeatureID" json:"feature,omitempty"`
	Action  *Action  `gorm:"foreignKey:ActionID" json:"action,omitempty"`
}

// UserRole assigns a role to a user within a restaurant.
type UserRole struct {
	BaseModel

	UserID       string `gorm:"type:uuid;not null;uniqueIndex:idx_user_role" json:"user_id"`
	RestaurantID string `gorm:"type:uuid;not null;uniqueIndex:idx_user_role;index" json:"restaurant_id"`
	RoleID       string `gorm:"type:uuid;not null;uniqueIndex:idx_user_role;index" json:"role_id"`

	Role *Role `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

// UserPermissionOverride is the highest-precedence, user-specific decision
// for one (feature, action) pair, independent of role membership.
type UserPermissionOverride struct {
	BaseModel

	UserID       string `gorm:"type:uuid;not null;uniqueIndex:idx_user_override" json:"user_id"`
	RestaurantID string `gorm:"type:uuid;not null;uniqueIndex:idx_user_override;index" json:"restaurant_id"`
	FeatureID    string `gorm:"type:uuid;not null;uniqueIndex:idx_user_override" json:"feature_id"`
	ActionID     string `gorm:"type:uuid;not null;uniqueIndex:idx_user_override" json:"action_id"`
	Allowed      bool   `gorm:"not null" json:"allowed"`

	Feature *Feature `gorm:"foreignKey:FeatureID" json:"feature,omitempty"`
	Action  *Action  `gorm:"foreignKey:ActionID" json:"action,omitempty"`
}
