package middleware

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/botecohq/boteco/internal/models"
	"github.com/botecohq/boteco/pkg/errors"
	"github.com/botecohq/boteco/pkg/response"
)

// RequireSuperadmin restricts a route to platform superadmins.
func RequireSuperadmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(CtxSuperadminKey) {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireTenantAdmin allows superadmins and owners of the request's
// restaurant through; everyone else gets 403.
func RequireTenantAdmin(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(CtxSuperadminKey) {
			c.Next()
			return
		}

		userID := c.GetString(CtxUserIDKey)
		restaurantID := RestaurantID(c)
		if userID == "" || restaurantID == "" {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}

		var membership models.UserRestaurant
		err := db.WithContext(c.Request.Context()).
			Take(&membership, "user_id = ? AND restaurant_id = ? AND is_owner = ?", userID, restaurantID, true).Error
		if err != nil {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}

		c.Next()
	}
}
