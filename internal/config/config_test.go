package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	v := newViper()
	v.Set("run.image", "my-node-app")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "my-node-app", cfg.Run.ImageTag)
	assert.Equal(t, "my-node-app-test", cfg.Run.ContainerName)
	assert.Equal(t, ".", cfg.Run.BuildContext)
	assert.Equal(t, 8080, cfg.Run.HostPort)
	assert.Equal(t, 3000, cfg.Run.ContainerPort)
	assert.Equal(t, 10, cfg.Run.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Run.Interval)
	assert.Equal(t, "http://localhost:8080/", cfg.Run.HealthURL())
	assert.Equal(t, 30*time.Second, cfg.CleanupTimeout)
	assert.Empty(t, cfg.HistoryDB)
	assert.NoError(t, cfg.Run.Validate())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("VERIFY_RUN_IMAGE", "api:sha-123")
	t.Setenv("VERIFY_RUN_NAME", "api-smoke")
	t.Setenv("VERIFY_RUN_ATTEMPTS", "4")
	t.Setenv("VERIFY_RUN_INTERVAL", "500ms")
	t.Setenv("VERIFY_RUN_HOST_PORT", "9090")
	t.Setenv("VERIFY_HISTORY_DB", "/tmp/runs.db")

	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, "api:sha-123", cfg.Run.ImageTag)
	assert.Equal(t, "api-smoke", cfg.Run.ContainerName)
	assert.Equal(t, 4, cfg.Run.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Run.Interval)
	assert.Equal(t, 9090, cfg.Run.HostPort)
	assert.Equal(t, "/tmp/runs.db", cfg.HistoryDB)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
run:
  image: web:ci
  context: ./frontend
  attempts: 3
  interval: 1s
  health-path: /healthz
log:
  level: debug
  format: json
`), 0o644))

	v := newViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "web:ci", cfg.Run.ImageTag)
	assert.Equal(t, "./frontend", cfg.Run.BuildContext)
	assert.Equal(t, 3, cfg.Run.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Run.Interval)
	assert.Equal(t, "http://localhost:8080/healthz", cfg.Run.HealthURL())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	v := newViper()
	v.Set("log.level", "loud")
	_, err := Load(v)
	assert.ErrorContains(t, err, "log.level")
}

func TestDefaultContainerName(t *testing.T) {
	assert.Equal(t, "app-test", DefaultContainerName("app"))
	assert.Equal(t, "app-test", DefaultContainerName("app:latest"))
	assert.Equal(t, "app-test", DefaultContainerName("registry.local:5000/team/app:v1"))
	assert.Equal(t, "app-test", DefaultContainerName("team/app@sha256:abc"))
}
