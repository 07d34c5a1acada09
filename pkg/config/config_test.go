package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg := LoadFromEnv()

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
	assert.Equal(t, int64(64<<20), cfg.Server.MaxUploadSize)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, 32, cfg.Storage.CacheShards)
	assert.False(t, cfg.Redis.Enabled)
	assert.Empty(t, cfg.Auth.AdminKeys)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_TTL", "5m")
	t.Setenv("STORAGE_LOCAL_PATH", "/srv/quarry")
	t.Setenv("AUTH_ADMIN_KEYS", " one, ,two ")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := LoadFromEnv()

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Contains(t, cfg.Database.DatabaseURL(), "host=db.internal")
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.RedisAddr())
	assert.Equal(t, "/srv/quarry", cfg.Storage.LocalPath)
	assert.Equal(t, []string{"one", "two"}, cfg.Auth.AdminKeys)
	assert.True(t, cfg.Logging.IsDebug())
}

func TestLoadFromEnv_IgnoresMalformed(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	t.Setenv("REDIS_ENABLED", "maybe")
	t.Setenv("SERVER_READ_TIMEOUT", "soon")

	cfg := LoadFromEnv()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
  max_upload_size: 1024
database:
  driver: sqlite
  path: /var/lib/quarry/quarry.db
storage:
  local_path: /var/lib/quarry/downloads
  cache_shards: 8
auth:
  admin_keys:
    - admin_password
logging:
  level: warn
  format: text
`), 0644))

	t.Setenv("SERVER_PORT", "7001")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port, "environment overrides the file")
	assert.Equal(t, int64(1024), cfg.Server.MaxUploadSize)
	assert.Equal(t, "/var/lib/quarry/quarry.db", cfg.Database.Path)
	assert.Equal(t, 8, cfg.Storage.CacheShards)
	assert.Equal(t, "local", cfg.Storage.Type, "unset keys keep their defaults")
	assert.Equal(t, []string{"admin_password"}, cfg.Auth.AdminKeys)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.Logging.IsDebug())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("unsupported driver", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "mysql")
		_, err := Load("")
		assert.ErrorContains(t, err, "unsupported database driver")
	})

	t.Run("non-positive shards", func(t *testing.T) {
		t.Setenv("STORAGE_CACHE_SHARDS", "0")
		_, err := Load("")
		assert.ErrorContains(t, err, "cache_shards")
	})
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	(&LoggingConfig{Level: "warn", Format: "json"}).SetupLogging()
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	(&LoggingConfig{Level: "nonsense", Format: "text"}).SetupLogging()
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	assert.True(t, (&LoggingConfig{Level: "trace"}).IsDebug())
	assert.False(t, (&LoggingConfig{Level: "info"}).IsDebug())
	assert.False(t, (&LoggingConfig{Level: ""}).IsDebug())
}
