// Package config turns viper settings (flags, env, config file) into typed
// configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/logger"
)

// EnvPrefix is prepended to every environment variable, e.g. VERIFY_RUN_IMAGE.
const EnvPrefix = "VERIFY"

// Config holds all configuration values for the verifier.
type Config struct {
	Run domain.RunConfig
	Log logger.Config

	// HistoryDB is the SQLite path for recorded runs; empty disables history.
	HistoryDB string

	// ServeAddr is the listen address for the HTTP API.
	ServeAddr string

	// CleanupTimeout bounds stop+remove and log capture.
	CleanupTimeout time.Duration
}

// SetDefaults registers the default for every key. These mirror the CI
// workflow the verifier replaces: ten attempts three seconds apart against
// localhost:8080, mapped to port 3000 in the container.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("run.context", ".")
	v.SetDefault("run.dockerfile", "Dockerfile")
	v.SetDefault("run.host-port", 8080)
	v.SetDefault("run.container-port", 3000)
	v.SetDefault("run.attempts", 10)
	v.SetDefault("run.interval", 3*time.Second)
	v.SetDefault("run.probe-timeout", 5*time.Second)
	v.SetDefault("run.health-host", "localhost")
	v.SetDefault("run.health-path", "/")
	v.SetDefault("run.timeout", time.Duration(0))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("history.db", "")
	v.SetDefault("serve.addr", ":3000")
	v.SetDefault("cleanup-timeout", 30*time.Second)
}

// BindEnv makes every key overridable from VERIFY_* variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from v. It does not validate the run section:
// commands that do not start a run (history, serve) never need an image.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Run: domain.RunConfig{
			ImageTag:      v.GetString("run.image"),
			ContainerName: v.GetString("run.name"),
			BuildContext:  v.GetString("run.context"),
			Dockerfile:    v.GetString("run.dockerfile"),
			GitRef:        v.GetString("run.git-ref"),
			HostPort:      v.GetInt("run.host-port"),
			ContainerPort: v.GetInt("run.container-port"),
			MaxAttempts:   v.GetInt("run.attempts"),
			Interval:      v.GetDuration("run.interval"),
			ProbeTimeout:  v.GetDuration("run.probe-timeout"),
			HealthHost:    v.GetString("run.health-host"),
			HealthPath:    v.GetString("run.health-path"),
			RunTimeout:    v.GetDuration("run.timeout"),
		},
		Log: logger.Config{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max-size-mb"),
			MaxBackups: v.GetInt("log.max-backups"),
			MaxAgeDays: v.GetInt("log.max-age-days"),
		},
		HistoryDB:      v.GetString("history.db"),
		ServeAddr:      v.GetString("serve.addr"),
		CleanupTimeout: v.GetDuration("cleanup-timeout"),
	}

	// container name follows the image when not given: my-app:ci -> my-app-test
	if cfg.Run.ContainerName == "" && cfg.Run.ImageTag != "" {
		cfg.Run.ContainerName = DefaultContainerName(cfg.Run.ImageTag)
	}

	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("invalid log.level: %w", err)
	}
	if cfg.CleanupTimeout <= 0 {
		return nil, fmt.Errorf("invalid cleanup-timeout: must be positive")
	}
	return cfg, nil
}

// DefaultContainerName derives a container name from an image reference.
func DefaultContainerName(image string) string {
	name := image
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	return name + "-test"
}
