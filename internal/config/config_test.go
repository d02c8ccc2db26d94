package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err, "Load must fail without JWT_SECRET")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.False(t, cfg.Redis.Enabled, "Redis must default to disabled")
	assert.Equal(t, 30*time.Second, cfg.Provider.RequestTimeout)
	assert.False(t, cfg.Scan.PersistScans, "persistence must be off without DATABASE_URL")
	assert.Equal(t, "admin", cfg.AdminUsername)
	assert.Equal(t, "viewer", cfg.ViewerUsername)
	assert.Empty(t, cfg.ViewerPasswordHash, "viewer account must be disabled by default")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/vis_test")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("PROVIDER_REQUEST_TIMEOUT", "10s")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("API_KEYS", "vis_abc:pro")
	t.Setenv("ADMIN_VIEWER_PASSWORD_HASH", "$2a$10$fakehash")
	t.Setenv("SKIP_STARTUP_HEALTH_CHECK", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Provider.RequestTimeout)
	assert.Equal(t, "sk-test", cfg.Provider.OpenAIKey)
	assert.Equal(t, "vis_abc:pro", cfg.APIKeys)
	assert.Equal(t, "$2a$10$fakehash", cfg.ViewerPasswordHash)
	assert.True(t, cfg.Provider.SkipStartupHealthCheck)
	assert.True(t, cfg.Scan.PersistScans, "persistence must be on with DATABASE_URL")
}

func TestGetEnvHelpers_MalformedFallsBack(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	t.Setenv("SOME_DURATION", "not-a-duration")
	t.Setenv("SOME_BOOL", "not-a-bool")

	assert.Equal(t, 7, getEnvInt("SOME_INT", 7))
	assert.Equal(t, time.Minute, getEnvDuration("SOME_DURATION", time.Minute))
	assert.True(t, getEnvBool("SOME_BOOL", true))
}
