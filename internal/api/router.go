package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/botecohq/boteco/internal/app"
	iauth "github.com/botecohq/boteco/internal/auth"
	"github.com/botecohq/boteco/internal/cache"
	"github.com/botecohq/boteco/internal/handlers"
	"github.com/botecohq/boteco/internal/iam"
	"github.com/botecohq/boteco/internal/middleware"
	"github.com/botecohq/boteco/internal/services"
)

// Deps carries everything the router needs wired in.
type Deps struct {
	DB       *gorm.DB
	JWT      *iauth.JWTService
	Resolver *iam.Resolver
	Iam      *services.IamService
	Audit    *services.AuditService
	Store    cache.Store
	Config   *app.Config
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("permission resolver must be provided")
	}
	if deps.Iam == nil {
		return nil, fmt.Errorf("iam service must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	if rl := deps.Config.Server.RateLimit; rl.Enabled {
		r.Use(middleware.RateLimit(deps.Store, rl.MaxRequests, rl.Window))
	}

	r.NoRoute(middleware.NotFoundHandler)

	if deps.Config.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(deps.DB))
	}
	if mon := deps.Config.Monitoring.Prometheus; mon.Enabled {
		endpoint := mon.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT, deps.Audit)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
	}

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))

	api.GET("/auth/me", authHandler.Me)

	if err := registerIamRoutes(api, deps); err != nil {
		return nil, err
	}

	return r, nil
}
