package ingress

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

type containerSignaler interface {
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	Close() error
}

// DockerReloader reloads nginx by sending SIGHUP to its container whenever a domain changes.
type DockerReloader struct {
	client    containerSignaler
	container string
}

// NewDockerReloader connects to the Docker daemon from the environment.
func NewDockerReloader(container string) (*DockerReloader, error) {
	container = strings.TrimSpace(container)
	if container == "" {
		return nil, fmt.Errorf("container name required")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &DockerReloader{client: cli, container: container}, nil
}

// ID implements Integration.
func (r *DockerReloader) ID() string {
	return "nginx-docker"
}

// AddDomain implements Integration.
func (r *DockerReloader) AddDomain(ctx context.Context, _, _ string) error {
	return r.Reload(ctx)
}

// RemoveDomain implements Integration.
func (r *DockerReloader) RemoveDomain(ctx context.Context, _, _ string) error {
	return r.Reload(ctx)
}

// Reload signals the nginx container.
func (r *DockerReloader) Reload(ctx context.Context) error {
	if err := r.client.ContainerKill(ctx, r.container, "HUP"); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("nginx container %s not found", r.container)
		}
		return err
	}
	return nil
}

// Test implements Integration by checking the nginx container is running.
func (r *DockerReloader) Test(ctx context.Context) error {
	info, err := r.client.ContainerInspect(ctx, r.container)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("nginx container %s not found", r.container)
		}
		return fmt.Errorf("inspect nginx container: %w", err)
	}
	if info.ContainerJSONBase == nil || info.State == nil || !info.State.Running {
		return fmt.Errorf("nginx container %s is not running", r.container)
	}
	return nil
}

// Close releases the Docker client.
func (r *DockerReloader) Close() error {
	return r.client.Close()
}
