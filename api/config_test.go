package handler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "mindforu", cfg.MongoDatabase)
	assert.Equal(t, time.Hour, cfg.SyncInterval)
	assert.Equal(t, time.Minute, cfg.AnalyticsCacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.True(t, cfg.SyncEnabled)
	assert.False(t, cfg.HasVapiConfig())
	assert.False(t, cfg.HasStripeConfig())
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "mindforu.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9000\"\nsync_interval: 30m\nvapi_api_key: from-file\n"), 0o600))

	t.Setenv("VAPI_API_KEY", "from-env")
	t.Setenv("SYNC_CONCURRENCY", "8")
	t.Setenv("CORS_ORIGINS", "https://app.example.com,https://admin.example.com")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.SyncInterval)
	assert.Equal(t, "from-env", cfg.VapiAPIKey)
	assert.Equal(t, 8, cfg.SyncConcurrency)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORSOrigins)
	assert.True(t, cfg.HasVapiConfig())
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.GinMode = "release"
	cfg.SyncInterval = 10 * time.Second
	cfg.SyncConcurrency = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "VAPI_WEBHOOK_SECRET")
	assert.Contains(t, err.Error(), "SYNC_INTERVAL")
	assert.Contains(t, err.Error(), "SYNC_CONCURRENCY")

	cfg = DefaultConfig()
	cfg.GinMode = "release"
	cfg.JWTSecret = "s3cret"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VAPI_WEBHOOK_SECRET")
	assert.NotContains(t, err.Error(), "JWT_SECRET")

	cfg.VapiWebhookSecret = "hook"
	assert.NoError(t, cfg.Validate())
}
