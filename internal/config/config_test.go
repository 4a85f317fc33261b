package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production") // skip .env lookup
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()
	assert.Equal(t, "http://localhost:8080", cfg.BackendURL)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.RealtimeURL)
	assert.Equal(t, 15*time.Second, cfg.SendTimeout)
	assert.Equal(t, 8, cfg.MaxOpenSessions)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.JoinRetryInterval)
	assert.Equal(t, 10, cfg.JoinRetryAttempts)
}

func TestLoadYamlAndEnvPriority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"backend_url: http://yaml:9090\npage_size: 25\njoin_retry_ms: 500\n"), 0o644))

	t.Setenv("APP_ENV", "production")
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("PAGE_SIZE", "30")

	cfg := Load()
	assert.Equal(t, "http://yaml:9090", cfg.BackendURL, "yaml overrides defaults")
	assert.Equal(t, 30, cfg.PageSize, "env overrides yaml")
	assert.Equal(t, 500*time.Millisecond, cfg.JoinRetryInterval)
}

func TestLoadClampsBadValues(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("PAGE_SIZE", "10000")
	t.Setenv("MAX_OPEN_SESSIONS", "-1")

	cfg := Load()
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 8, cfg.MaxOpenSessions)
}
