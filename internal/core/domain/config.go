package domain

import (
	"fmt"
	"strings"
	"time"
)

// RunConfig is everything a LifecycleRun needs. All values are supplied by
// the caller; the config layer owns the defaults.
type RunConfig struct {
	ImageTag      string        `json:"image_tag"`
	ContainerName string        `json:"container_name"`
	BuildContext  string        `json:"build_context"`
	Dockerfile    string        `json:"dockerfile"`
	GitRef        string        `json:"git_ref,omitempty"`
	HostPort      int           `json:"host_port"`
	ContainerPort int           `json:"container_port"`
	MaxAttempts   int           `json:"max_attempts"`
	Interval      time.Duration `json:"interval"`
	ProbeTimeout  time.Duration `json:"probe_timeout"`
	HealthHost    string        `json:"health_host"`
	HealthPath    string        `json:"health_path"`
	RunTimeout    time.Duration `json:"run_timeout"`
}

// Validate reports the first problem found in c, wrapped in ErrInvalidConfig.
func (c RunConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.ImageTag) == "":
		return fmt.Errorf("%w: image tag is required", ErrInvalidConfig)
	case strings.TrimSpace(c.ContainerName) == "":
		return fmt.Errorf("%w: container name is required", ErrInvalidConfig)
	case strings.TrimSpace(c.BuildContext) == "":
		return fmt.Errorf("%w: build context is required", ErrInvalidConfig)
	case !validPort(c.HostPort):
		return fmt.Errorf("%w: host port %d out of range", ErrInvalidConfig, c.HostPort)
	case !validPort(c.ContainerPort):
		return fmt.Errorf("%w: container port %d out of range", ErrInvalidConfig, c.ContainerPort)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidConfig, c.MaxAttempts)
	case c.Interval < 0:
		return fmt.Errorf("%w: probe interval must not be negative", ErrInvalidConfig)
	case c.ProbeTimeout < 0 || c.RunTimeout < 0:
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	case c.HealthHost == "":
		return fmt.Errorf("%w: health host is required", ErrInvalidConfig)
	}
	return nil
}

// HealthURL is the address the prober polls.
func (c RunConfig) HealthURL() string {
	path := c.HealthPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("http://%s:%d%s", c.HealthHost, c.HostPort, path)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
