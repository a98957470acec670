package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.False(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "boteco", cfg.Auth.JWT.Issuer)
	require.Equal(t, 15*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, time.Hour, cfg.IAM.SnapshotTTL)
	require.Equal(t, 5*time.Second, cfg.IAM.BuildTimeout)
	require.Equal(t, 90, cfg.IAM.AuditRetentionDays)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("BOTECO_SERVER_PORT", "9100")
	t.Setenv("BOTECO_DATABASE_DRIVER", "postgres")
	t.Setenv("BOTECO_CACHE_REDIS_ENABLED", "true")
	t.Setenv("BOTECO_IAM_SNAPSHOT_TTL", "30m")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, 30*time.Minute, cfg.IAM.SnapshotTTL)
}

func TestRedisClientConfigTrimsFields(t *testing.T) {
	cache := CacheConfig{Redis: RedisCacheConfig{
		Address:  " 127.0.0.1:6379 ",
		Username: " default ",
		Password: "secret",
		DB:       2,
	}}

	cfg := cache.RedisClientConfig()
	require.Equal(t, "127.0.0.1:6379", cfg.Address)
	require.Equal(t, "default", cfg.Username)
	require.Equal(t, "secret", cfg.Password)
	require.Equal(t, 2, cfg.DB)
}
