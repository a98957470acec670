package database

import (
	"gorm.io/gorm"

	"github.com/botecohq/boteco/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Restaurant{},
		&models.UserRestaurant{},
		&models.Module{},
		&models.Submodule{},
		&models.Feature{},
		&models.Action{},
		&models.Entitlement{},
		&models.Role{},
		&models.RolePermission{},
		&models.UserRole{},
		&models.UserPermissionOverride{},
		&models.AuditLog{},
		&models.CacheEntry{},
	)
}

// SeedData populates the action vocabulary, the default catalog and system roles.
// Seeded rows use their key as primary key so reseeding is idempotent.
func SeedData(db *gorm.DB) error {
	if err := seedActions(db); err != nil {
		return err
	}
	if err := seedCatalog(db); err != nil {
		return err
	}
	return seedSystemRoles(db)
}

func seedActions(db *gorm.DB) error {
	actions := []models.Action{
		{BaseModel: models.BaseModel{ID: "create"}, Key: "create", Name: "Create", SortOrder: 1},
		{BaseModel: models.BaseModel{ID: "read"}, Key: "read", Name: "Read", SortOrder: 2},
		{BaseModel: models.BaseModel{ID: "update"}, Key: "update", Name: "Update", SortOrder: 3},
		{BaseModel: models.BaseModel{ID: "delete"}, Key: "delete", Name: "Delete", SortOrder: 4},
		{BaseModel: models.BaseModel{ID: "export"}, Key: "export", Name: "Export", SortOrder: 5},
	}

	for _, action := range actions {
		if err := db.Where(models.Action{Key: action.Key}).Attrs(action).FirstOrCreate(&models.Action{}).Error; err != nil {
			return err
		}
	}
	return nil
}

type seedFeature struct {
	key, name string
	order     int
}

type seedSubmodule struct {
	key, name string
	order     int
	features  []seedFeature
}

type seedModule struct {
	key, name, description string
	order                  int
	submodules             []seedSubmodule
	features               []seedFeature // attached directly to the module
}

var defaultCatalog = []seedModule{
	{
		key: "orders", name: "Orders", description: "Point of sale and order flow", order: 1,
		submodules: []seedSubmodule{
			{key: "orders.pos", name: "Point of Sale", order: 1, features: []seedFeature{
				{key: "orders.tickets", name: "Tickets", order: 1},
				{key: "orders.kitchen", name: "Kitchen Queue", order: 2},
			}},
		},
		features: []seedFeature{
			{key: "orders.reports", name: "Order Reports", order: 2},
		},
	},
	{
		key: "stock", name: "Stock", description: "Inventory and suppliers", order: 2,
		submodules: []seedSubmodule{
			{key: "stock.inventory", name: "Inventory", order: 1, features: []seedFeature{
				{key: "stock.items", name: "Items", order: 1},
				{key: "stock.suppliers", name: "Suppliers", order: 2},
			}},
		},
	},
	{
		key: "crm", name: "CRM", description: "Customer relationship management", order: 3,
		submodules: []seedSubmodule{
			{key: "crm.customers", name: "Customers", order: 1, features: []seedFeature{
				{key: "crm.profiles", name: "Profiles", order: 1},
				{key: "crm.segments", name: "Segments", order: 2},
			}},
		},
	},
	{
		key: "coupons", name: "Coupons", description: "Promotions and discount coupons", order: 4,
		submodules: []seedSubmodule{
			{key: "coupons.promotions", name: "Promotions", order: 1, features: []seedFeature{
				{key: "coupons.campaigns", name: "Campaigns", order: 1},
			}},
		},
	},
	{
		key: "surveys", name: "Surveys", description: "Customer satisfaction surveys", order: 5,
		submodules: []seedSubmodule{
			{key: "surveys.forms", name: "Forms", order: 1, features: []seedFeature{
				{key: "surveys.templates", name: "Templates", order: 1},
				{key: "surveys.responses", name: "Responses", order: 2},
			}},
		},
	},
}

func seedCatalog(db *gorm.DB) error {
	for _, mod := range defaultCatalog {
		module := models.Module{
			BaseModel:   models.BaseModel{ID: mod.key},
			Key:         mod.key,
			Name:        mod.name,
			Description: mod.description,
			SortOrder:   mod.order,
			Visible:     true,
		}
		if err := db.Where(models.Module{Key: mod.key}).Attrs(module).FirstOrCreate(&models.Module{}).Error; err != nil {
			return err
		}

		for _, sub := range mod.submodules {
			submodule := models.Submodule{
				BaseModel: models.BaseModel{ID: sub.key},
				ModuleID:  mod.key,
				Key:       sub.key,
				Name:      sub.name,
				SortOrder: sub.order,
				Visible:   true,
			}
			if err := db.Where(models.Submodule{Key: sub.key}).Attrs(submodule).FirstOrCreate(&models.Submodule{}).Error; err != nil {
				return err
			}

			for _, feat := range sub.features {
				subID := sub.key
				feature := models.Feature{
					BaseModel:   models.BaseModel{ID: feat.key},
					SubmoduleID: &subID,
					Key:         feat.key,
					Name:        feat.name,
					SortOrder:   feat.order,
					Visible:     true,
				}
				if err := db.Where(models.Feature{Key: feat.key}).Attrs(feature).FirstOrCreate(&models.Feature{}).Error; err != nil {
					return err
				}
			}
		}

		for _, feat := range mod.features {
			modID := mod.key
			feature := models.Feature{
				BaseModel: models.BaseModel{ID: feat.key},
				ModuleID:  &modID,
				Key:       feat.key,
				Name:      feat.name,
				SortOrder: feat.order,
				Visible:   true,
			}
			if err := db.Where(models.Feature{Key: feat.key}).Attrs(feature).FirstOrCreate(&models.Feature{}).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func seedSystemRoles(db *gorm.DB) error {
	roles := []models.Role{
		{BaseModel: models.BaseModel{ID: "manager"}, Key: "manager", Name: "Manager", IsSystem: true},
		{BaseModel: models.BaseModel{ID: "waiter"}, Key: "waiter", Name: "Waiter", IsSystem: true},
	}

	for _, role := range roles {
		if err := db.Where(models.Role{BaseModel: models.BaseModel{ID: role.ID}}).Attrs(role).FirstOrCreate(&models.Role{}).Error; err != nil {
			return err
		}
	}
	return nil
}
