package models

// User represents a person that can sign in and act inside one or more restaurants.
type User struct {
	BaseModel

	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	Name         string `gorm:"not null" json:"name"`
	PasswordHash string `gorm:"not null" json:"-"`
	IsSuperadmin bool   `gorm:"default:false" json:"is_superadmin"`
	Active       bool   `gorm:"default:true" json:"active"`

	Restaurants []Restaurant `gorm:"many2many:user_restaurants;" json:"restaurants,omitempty"`
}
