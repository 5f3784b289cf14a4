package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/clinic")
	t.Setenv("JWT_SECRET", "s3cret")

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "dev", cfg.Env)
		assert.Equal(t, "8080", cfg.HTTPPort)
		assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
		assert.Equal(t, 5*time.Second, cfg.LockTTL)
		assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	})

	t.Run("missing postgres dsn", func(t *testing.T) {
		t.Setenv("POSTGRES_DSN", "")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("missing jwt secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("redis url wins over discrete vars", func(t *testing.T) {
		t.Setenv("REDIS_ADDR", "ignored:1111")
		t.Setenv("REDIS_URL", "redis://user:pw@cache.internal:6380")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "cache.internal:6380", cfg.RedisAddr)
		assert.Equal(t, "user", cfg.RedisUsername)
		assert.Equal(t, "pw", cfg.RedisPassword)
	})

	t.Run("bare seconds as duration", func(t *testing.T) {
		t.Setenv("LOCK_TTL", "30")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, cfg.LockTTL)
	})
}
