package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-io/warden/pkg/archive"
	"github.com/warden-io/warden/pkg/roles"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 90, cfg.Retention.Days)
	assert.Equal(t, "30 3 * * *", cfg.Retention.Schedule)
	assert.False(t, cfg.Seeds.WhitelistEnabled)
	assert.Equal(t, int64(30), cfg.RateLimit.PerUserLimit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WARDEN_PORT", "8181")
	t.Setenv("WARDEN_OWNER_HANDLES", "+15550000001, +15550000002")
	t.Setenv("WARDEN_ADMIN_HANDLES", "+15550000003")
	t.Setenv("WARDEN_WHITELIST_ENABLED", "true")
	t.Setenv("WARDEN_RETENTION_DAYS", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8181", cfg.Server.Port)
	assert.Equal(t, []string{"+15550000001", "+15550000002"}, cfg.Seeds.OwnerHandles)
	assert.Equal(t, []string{"+15550000003"}, cfg.Seeds.AdminHandles)
	assert.True(t, cfg.Seeds.WhitelistEnabled)
	assert.Equal(t, 30, cfg.Retention.Days)

	assert.Equal(t, roles.RoleOwner, cfg.Seeds.RoleFor("+15550000002"))
	assert.Equal(t, roles.RoleAdmin, cfg.Seeds.RoleFor("+15550000003"))
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
owners:
  - "+15551110001"
admins:
  - "+15551110002"
operators:
  - "+15551110003"
whitelist:
  enabled: true
  handles:
    - "+15551110004"
`), 0o644))

	t.Setenv("WARDEN_SEED_FILE", path)
	t.Setenv("WARDEN_OWNER_HANDLES", "+15551119999")

	cfg, err := Load()
	require.NoError(t, err)

	// Environment entries come first, file entries are appended.
	assert.Equal(t, []string{"+15551119999", "+15551110001"}, cfg.Seeds.OwnerHandles)
	assert.Equal(t, []string{"+15551110002"}, cfg.Seeds.AdminHandles)
	assert.Equal(t, []string{"+15551110003"}, cfg.Seeds.OperatorHandles)
	assert.True(t, cfg.Seeds.WhitelistEnabled)
	assert.Equal(t, []string{"+15551110004"}, cfg.Seeds.WhitelistHandles)
}

func TestLoadSeedFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("WARDEN_SEED_FILE", "/nonexistent/seeds.yaml")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "seeds.yaml")
		require.NoError(t, os.WriteFile(path, []byte("owners: {not a list"), 0o644))
		t.Setenv("WARDEN_SEED_FILE", path)
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	t.Run("same ports rejected", func(t *testing.T) {
		cfg := valid()
		cfg.Server.HealthPort = cfg.Server.Port
		assert.Error(t, cfg.Validate())
	})

	t.Run("rate limit needs redis", func(t *testing.T) {
		cfg := valid()
		cfg.RateLimit.Enabled = true
		cfg.Redis.Addr = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("archive needs bucket", func(t *testing.T) {
		cfg := valid()
		cfg.Retention.ArchiveEnabled = true
		cfg.Archive.Backend = archive.BackendS3
		cfg.Archive.S3Bucket = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("nonpositive retention rejected", func(t *testing.T) {
		cfg := valid()
		cfg.Retention.Days = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("otel needs endpoint", func(t *testing.T) {
		cfg := valid()
		cfg.Observability.OTelEnabled = true
		cfg.Observability.OTelEndpoint = ""
		assert.Error(t, cfg.Validate())
	})
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("WARDEN_TEST_INT", "42")
	t.Setenv("WARDEN_TEST_BOOL", "TRUE")
	t.Setenv("WARDEN_TEST_DURATION", "90s")
	t.Setenv("WARDEN_TEST_LIST", "a, b, ,c")

	assert.Equal(t, 42, getEnvInt("WARDEN_TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("WARDEN_TEST_INT_MISSING", 7))
	assert.True(t, getEnvBool("WARDEN_TEST_BOOL", false))
	assert.Equal(t, 90*time.Second, getEnvDuration("WARDEN_TEST_DURATION", 0))
	assert.Equal(t, []string{"a", "b", "c"}, getEnvList("WARDEN_TEST_LIST"))
	assert.Nil(t, getEnvList("WARDEN_TEST_LIST_MISSING"))
}
