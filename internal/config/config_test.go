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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "random_forest", cfg.Model.DefaultFamily)
	assert.Equal(t, 500, cfg.Model.BootstrapSize)
	assert.Equal(t, 50000, cfg.Model.RetentionCap)
	assert.Equal(t, 0.1, cfg.Model.Alpha)
	assert.True(t, cfg.Development())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9091
model:
  default_family: gradient_boosting
  retention_cap: 1000
environment: production
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9091, cfg.Server.Port)
	assert.Equal(t, "gradient_boosting", cfg.Model.DefaultFamily)
	assert.Equal(t, 1000, cfg.Model.RetentionCap)
	assert.False(t, cfg.Development())
	// Untouched keys keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("TASKPREDICT_SERVER_PORT", "7070")
	t.Setenv("TASKPREDICT_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
