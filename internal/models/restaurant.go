package models

// Restaurant is the tenant boundary. Every role, entitlement and override is
// scoped to exactly one restaurant.
type Restaurant struct {
	BaseModel

	Name string `gorm:"not null" json:"name"`
	Slug string `gorm:"uniqueIndex;not null" json:"slug"`

	// PermVersion is bumped atomically on every permission-affecting write.
	// Cached snapshots are valid only while their embedded version matches.
	PermVersion int64 `gorm:"not null;default:0" json:"perm_version"`

	Users []User `gorm:"many2many:user_restaurants;" json:"users,omitempty"`
}

// UserRestaurant is the membership edge between a user and a restaurant.
type UserRestaurant struct {
	UserID       string `gorm:"primaryKey;type:uuid" json:"user_id"`
	RestaurantID string `gorm:"primaryKey;type:uuid" json:"restaurant_id"`
	IsOwner      bool   `gorm:"default:false" json:"is_owner"`
}
