package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/botecohq/boteco/internal/api"
	"github.com/botecohq/boteco/internal/app"
	"github.com/botecohq/boteco/internal/app/maintenance"
	iauth "github.com/botecohq/boteco/internal/auth"
	"github.com/botecohq/boteco/internal/cache"
	"github.com/botecohq/boteco/internal/database"
	"github.com/botecohq/boteco/internal/iam"
	"github.com/botecohq/boteco/internal/models"
	"github.com/botecohq/boteco/internal/pubsub"
	"github.com/botecohq/boteco/internal/services"
	"github.com/botecohq/boteco/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Store    cache.Store
	Resolver *iam.Resolver
	AuditSvc *services.AuditService
	IamSvc   *services.IamService
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine

	stopInvalidator context.CancelFunc
}

// bootstrapRuntime initialises the database, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err := ensureBootstrapAdmin(ctx, stack.DB, cfg.Bootstrap, log); err != nil {
		return nil, err
	}

	// Snapshots live in Redis when it is available; otherwise the
	// database-backed store keeps caching working on a single instance.
	var bus *pubsub.RedisInvalidationBus
	if cfg.Cache.Redis.Enabled {
		stack.Redis, err = cache.NewRedisClient(cfg.Cache.RedisClientConfig())
		if err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
			stack.Store = cache.NewRedisStore(stack.Redis)
			bus = pubsub.NewRedisInvalidationBus(stack.Redis, logger.WithModule("pubsub"))
		}
	}
	if stack.Store == nil {
		stack.Store = cache.NewDatabaseStore(stack.DB)
	}

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Resolver = iam.NewResolver(stack.DB, stack.Store, logger.WithModule("iam"),
		iam.WithSnapshotTTL(cfg.IAM.SnapshotTTL),
		iam.WithBuildTimeout(cfg.IAM.BuildTimeout),
	)

	stack.AuditSvc, err = services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	var publisher pubsub.InvalidationPublisher
	if bus != nil {
		publisher = bus
	}
	stack.IamSvc, err = services.NewIamService(stack.DB, stack.AuditSvc, stack.Store, publisher, logger.WithModule("iam"))
	if err != nil {
		return nil, fmt.Errorf("initialise iam service: %w", err)
	}

	if bus != nil {
		subCtx, cancel := context.WithCancel(context.Background())
		stack.stopInvalidator = cancel
		invalidator := iam.NewInvalidator(stack.Store, bus, logger.WithModule("invalidator"))
		go func() {
			if err := invalidator.Run(subCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("invalidation subscriber stopped", zap.Error(err))
			}
		}()
	}

	stack.Cleaner = maintenance.NewCleaner(stack.DB, stack.AuditSvc,
		maintenance.WithAuditRetentionDays(cfg.IAM.AuditRetentionDays))
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Deps{
		DB:       stack.DB,
		JWT:      jwtSvc,
		Resolver: stack.Resolver,
		Iam:      stack.IamSvc,
		Audit:    stack.AuditSvc,
		Store:    stack.Store,
		Config:   cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.stopInvalidator != nil {
		s.stopInvalidator()
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DBConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

// ensureBootstrapAdmin creates the initial platform superadmin when the
// instance has none and bootstrap credentials are configured.
func ensureBootstrapAdmin(ctx context.Context, db *gorm.DB, cfg app.BootstrapConfig, log *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || strings.TrimSpace(cfg.AdminPassword) == "" {
		return nil
	}

	var existing int64
	if err := db.WithContext(ctx).Model(&models.User{}).
		Where("is_superadmin = ?", true).Count(&existing).Error; err != nil {
		return fmt.Errorf("bootstrap admin: count superadmins: %w", err)
	}
	if existing > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("bootstrap admin: hash password: %w", err)
	}

	name := strings.TrimSpace(cfg.AdminName)
	if name == "" {
		name = "Administrator"
	}

	admin := models.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		IsSuperadmin: true,
		Active:       true,
	}
	if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
		return fmt.Errorf("bootstrap admin: create user: %w", err)
	}

	log.Info("bootstrap superadmin created", zap.String("email", email))
	return nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
