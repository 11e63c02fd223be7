package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chTempDir runs the test from an empty directory so no config.yaml is found.
func chTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Store.MaxConns)
	assert.Equal(t, 1, cfg.Store.MinConns)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.LargeContextModel)
	assert.Equal(t, 10, cfg.Detect.TimeoutSecs)
	assert.Equal(t, 60, cfg.Detect.RequestsPerMinute)
	assert.Equal(t, "filterlists", cfg.Adblock.ListDir)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
store:
  database_url: postgres://localhost/traffic
log:
  level: debug
  format: console
detect:
  requests_per_minute: 20
adblock:
  list_dir: /var/lib/filterlists
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/traffic", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 20, cfg.Detect.RequestsPerMinute)
	assert.Equal(t, "/var/lib/filterlists", cfg.Adblock.ListDir)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Detect.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
log:
  level: debug
anthropic:
  model: claude-haiku-4-5-20251001
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("TRAFFIC_LOG_LEVEL", "warn")
	t.Setenv("TRAFFIC_ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("TRAFFIC_DETECT_TIMEOUT_SECS", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Detect.TimeoutSecs)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/traffic"
	assert.NoError(t, cfg.Validate())
}

func TestValidateDetect(t *testing.T) {
	cfg := &Config{}
	err := cfg.ValidateDetect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant-key"
	err = cfg.ValidateDetect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.model is required")

	cfg.Anthropic.Model = "claude-haiku-4-5-20251001"
	assert.NoError(t, cfg.ValidateDetect())
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
