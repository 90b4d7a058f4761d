package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	for _, k := range []string{"PORT", "STORAGE_DRIVER", "BCRYPT_COST", "AVATAR_MAX_BYTES", "REDIS_HOST", "JWT_SECRET"} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, StorageMongo, cfg.StorageDriver)
	assert.Equal(t, 8, cfg.BcryptCost)
	assert.Equal(t, int64(1000000), cfg.AvatarMaxBytes)
	assert.Equal(t, "secret", cfg.JWTSecret)
	assert.Empty(t, cfg.RedisHost)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("PORT", "8081")
	t.Setenv("STORAGE_DRIVER", "Postgres")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("BCRYPT_COST", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, "cache", cfg.RedisHost)
	assert.Equal(t, 6380, cfg.RedisPort)
	assert.Equal(t, 8, cfg.BcryptCost)
}
