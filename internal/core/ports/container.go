package ports

import (
	"context"
	"io"

	"github.com/melih/lighthouse-verify/internal/core/domain"
)

// LaunchSpec describes a detached container start.
type LaunchSpec struct {
	Image         string
	Name          string
	HostPort      int
	ContainerPort int
}

// ContainerService defines the container runtime operations a LifecycleRun
// needs. This interface allows us to switch between Docker, Podman, or a
// fake in tests without changing the driver.
type ContainerService interface {
	// StartContainer creates and starts a detached container. It returns a
	// handle only when the container is running; a container that was created
	// but failed to start is removed before the error is returned.
	StartContainer(ctx context.Context, spec LaunchSpec) (domain.ContainerHandle, error)
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	GetContainerLogs(ctx context.Context, id string) (io.ReadCloser, error)
}
