package models

import "gorm.io/datatypes"

// Entitlement attaches a per-tenant status to a catalog node. The absence of
// a row falls back to the engine's default status policy.
type Entitlement struct {
	BaseModel

	RestaurantID string         `gorm:"type:uuid;not null;uniqueIndex:idx_entitlement_entity" json:"restaurant_id"`
	EntityType   string         `gorm:"not null;uniqueIndex:idx_entitlement_entity" json:"entity_type"`
	EntityID     string         `gorm:"type:uuid;not null;uniqueIndex:idx_entitlement_entity" json:"entity_id"`
	Status       string         `gorm:"not null" json:"status"`
	Source       string         `json:"source"`
	Metadata     datatypes.JSON `json:"metadata"`
}
