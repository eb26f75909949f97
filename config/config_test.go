package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "local", cfg.Store.ChangeFeed)
	assert.Equal(t, 5*time.Minute, cfg.GetIdleTimeout())
	assert.Equal(t, "default_app_id", cfg.Namespace())
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_id: "fazenda santa rita"
port: "9000"
store:
  backend: sqlite
  sqlite_path: /tmp/farm.db
state:
  idle_timeout: 2s
`), 0o644))

	t.Setenv("SQLITE_PATH", "/data/farm.db")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fazenda santa rita", cfg.AppID)
	assert.Equal(t, "fazenda_santa_rita", cfg.Namespace())
	assert.Equal(t, ":9000", cfg.Port)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/data/farm.db", cfg.Store.SQLitePath)
	assert.Equal(t, 2*time.Second, cfg.GetIdleTimeout())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
}

func TestNormalize_ChangeFeedDefaults(t *testing.T) {
	t.Run("mongo uses change streams", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Store.Backend = "mongo"
		cfg.normalize()
		assert.Equal(t, "changestream", cfg.Store.ChangeFeed)
	})

	t.Run("redis address selects redis feed", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Redis.Addr = "localhost:6379"
		cfg.normalize()
		assert.Equal(t, "redis", cfg.Store.ChangeFeed)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "dynamo" }, wantErr: true},
		{name: "changestream without mongo", mutate: func(c *Config) { c.Store.ChangeFeed = "changestream" }, wantErr: true},
		{name: "redis feed without address", mutate: func(c *Config) { c.Store.ChangeFeed = "redis" }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "empty secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.normalize()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWarningsFlagDefaultSecret(t *testing.T) {
	cfg := DefaultConfig()
	assert.Len(t, cfg.Warnings(), 1)

	cfg.Logging.Development = true
	assert.Empty(t, cfg.Warnings())

	cfg.Logging.Development = false
	cfg.Auth.JWTSecret = "s3cret-from-vault"
	assert.Empty(t, cfg.Warnings())
}
