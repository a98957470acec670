package models

// Module is the top level of the entity catalog. The catalog is
// tenant-independent reference data, mutated only through admin tooling.
type Module struct {
	BaseModel

	Key         string `gorm:"uniqueIndex;not null" json:"key"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	SortOrder   int    `gorm:"not null;default:0;index" json:"sort_order"`
	Visible     bool   `gorm:"default:true" json:"visible"`

	Submodules []Submodule `gorm:"foreignKey:ModuleID" json:"submodules,omitempty"`
	Features   []Feature   `gorm:"foreignKey:ModuleID" json:"features,omitempty"`
}

// Submodule groups features beneath a module.
type Submodule struct {
	BaseModel

	ModuleID    string `gorm:"type:uuid;not null;index" json:"module_id"`
	Key         string `gorm:"uniqueIndex;not null" json:"key"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	SortOrder   int    `gorm:"not null;default:0;index" json:"sort_order"`
	Visible     bool   `gorm:"default:true" json:"visible"`

	Features []Feature `gorm:"foreignKey:SubmoduleID" json:"features,omitempty"`
}

// Feature is the permission-bearing leaf of the catalog. It normally hangs
// off a submodule, but may attach directly to a module (SubmoduleID nil).
type Feature struct {
	BaseModel

	ModuleID    *string `gorm:"type:uuid;index" json:"module_id,omitempty"`
	SubmoduleID *string `gorm:"type:uuid;index" json:"submodule_id,omitempty"`
	Key         string  `gorm:"uniqueIndex;not null" json:"key"`
	Name        string  `gorm:"not null" json:"name"`
	Description string  `json:"description"`
	SortOrder   int     `gorm:"not null;default:0;index" json:"sort_order"`
	Visible     bool    `gorm:"default:true" json:"visible"`
}

// Action is the flat, tenant-independent verb vocabulary shared by all features.
type Action struct {
	BaseModel

	Key       string `gorm:"uniqueIndex;not null" json:"key"`
	Name      string `gorm:"not null" json:"name"`
	SortOrder int    `gorm:"not null;default:0;index" json:"sort_order"`
}
