package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/botecohq/boteco/internal/iam"
	"github.com/botecohq/boteco/pkg/errors"
	"github.com/botecohq/boteco/pkg/response"
)

// RestaurantIDHeader carries the tenant when the route has no path parameter.
const RestaurantIDHeader = "X-Restaurant-ID"

// RestaurantID extracts the tenant from the route or the header.
func RestaurantID(c *gin.Context) string {
	if id := c.Param("restaurantId"); id != "" {
		return id
	}
	return c.GetHeader(RestaurantIDHeader)
}

// RequirePermission guards a route behind a single feature/action pair,
// resolved for the authenticated user in the request's restaurant. Structured
// denials become 403 responses carrying the engine's reason.
func RequirePermission(resolver *iam.Resolver, featureKey, actionKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(CtxUserIDKey)
		if userID == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		restaurantID := RestaurantID(c)
		if restaurantID == "" {
			response.Error(c, errors.NewBadRequest("Restaurant id is required"))
			c.Abort()
			return
		}

		decision, err := resolver.CheckPermission(c.Request.Context(), restaurantID, userID, featureKey, actionKey)
		if err != nil {
			response.Error(c, errors.FromError(err))
			c.Abort()
			return
		}

		if !decision.Allowed {
			response.Error(c, &errors.AppError{
				Code:       errors.ErrForbidden.Code,
				Message:    "Permission denied: " + decision.Reason,
				StatusCode: http.StatusForbidden,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
