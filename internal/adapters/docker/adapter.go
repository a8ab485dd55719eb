package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/core/ports"
)

const stopTimeoutSeconds = 10

// apiClient is the subset of the Docker SDK the adapter uses.
type apiClient interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
}

// Adapter implements ports.ContainerService using Docker SDK
type Adapter struct {
	cli apiClient
}

var _ ports.ContainerService = (*Adapter)(nil)

// NewAdapter creates a new Docker adapter instance
func NewAdapter() (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli}, nil
}

// StartContainer creates and starts a detached container publishing
// spec.HostPort on spec.ContainerPort. The image must already exist locally.
func (a *Adapter) StartContainer(ctx context.Context, spec ports.LaunchSpec) (domain.ContainerHandle, error) {
	cfg, hostCfg := launchConfig(spec)

	resp, err := a.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return domain.ContainerHandle{}, fmt.Errorf("failed to create container: %w", err)
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// created but never started: remove it here so no handle is needed
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeoutSeconds*time.Second)
		defer cancel()
		if rmErr := a.cli.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			return domain.ContainerHandle{}, fmt.Errorf("failed to start container: %w (remove also failed: %v)", err, rmErr)
		}
		return domain.ContainerHandle{}, fmt.Errorf("failed to start container: %w", err)
	}

	return domain.ContainerHandle{ID: resp.ID, Name: spec.Name}, nil
}

// StopContainer stops a running container
func (a *Adapter) StopContainer(ctx context.Context, id string) error {
	timeout := stopTimeoutSeconds
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", shortID(id), err)
	}
	return nil
}

// RemoveContainer removes a container and its anonymous volumes.
func (a *Adapter) RemoveContainer(ctx context.Context, id string) error {
	err := a.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %w", shortID(id), err)
	}
	return nil
}

// GetContainerLogs returns the container's stdout and stderr, demultiplexed.
func (a *Adapter) GetContainerLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	options := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     false,
		Timestamps: true,
	}
	rc, err := a.cli.ContainerLogs(ctx, id, options)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch logs for %s: %w", shortID(id), err)
	}

	pr, pw := io.Pipe()
	go func() {
		defer rc.Close()
		_, err := stdcopy.StdCopy(pw, pw, rc)
		pw.CloseWithError(err)
	}()
	return pr, nil
}

func launchConfig(spec ports.LaunchSpec) (*container.Config, *container.HostConfig) {
	port := nat.Port(strconv.Itoa(spec.ContainerPort) + "/tcp")
	cfg := &container.Config{
		Image:        spec.Image,
		ExposedPorts: nat.PortSet{port: struct{}{}},
		Labels: map[string]string{
			"lighthouse.verify": "true",
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostPort: strconv.Itoa(spec.HostPort)}},
		},
	}
	return cfg, hostCfg
}

func shortID(id string) string {
	return domain.ContainerHandle{ID: id}.ShortID()
}
