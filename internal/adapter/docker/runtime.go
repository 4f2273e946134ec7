// Package docker adapts the Docker Engine API to the arbiter's Runtime
// port. Instances are containers addressed by name (local convention) or by
// the id the remote scheduler wrote back.
package docker

import (
	"context"
	"fmt"
	"time"

	"warden/internal/arbiter"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

var _ arbiter.Runtime = (*Runtime)(nil)

// Runtime implements arbiter.Runtime using the Docker Engine API.
type Runtime struct {
	cli *client.Client
}

// NewRuntime creates a Runtime with a new Docker client from the environment.
func NewRuntime() (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Runtime{cli: cli}, nil
}

// NewRuntimeFromClient wraps an existing Docker client.
func NewRuntimeFromClient(cli *client.Client) *Runtime {
	return &Runtime{cli: cli}
}

func (r *Runtime) Start(ctx context.Context, id string) error {
	if err := r.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %q: %w", id, err)
	}
	return nil
}

// Stop stops a container. A zero timeout uses the engine's default grace
// period.
func (r *Runtime) Stop(ctx context.Context, id string, timeout time.Duration) error {
	opts := container.StopOptions{}
	if timeout > 0 {
		secs := int(timeout.Seconds())
		opts.Timeout = &secs
	}
	if err := r.cli.ContainerStop(ctx, id, opts); err != nil {
		return fmt.Errorf("stop container %q: %w", id, err)
	}
	return nil
}

func (r *Runtime) Kill(ctx context.Context, id string) error {
	if err := r.cli.ContainerKill(ctx, id, "KILL"); err != nil {
		return fmt.Errorf("kill container %q: %w", id, err)
	}
	return nil
}

// Wait blocks until the container is no longer running and returns its exit
// status. Under normal operation this does not return until the instance
// terminates; cancellation comes from ctx only.
func (r *Runtime) Wait(ctx context.Context, id string) (int, error) {
	waitCh, errCh := r.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case resp := <-waitCh:
		if resp.Error != nil {
			return 1, fmt.Errorf("wait for container %q: %s", id, resp.Error.Message)
		}
		return int(resp.StatusCode), nil
	case err := <-errCh:
		if errdefs.IsNotFound(err) {
			return 1, fmt.Errorf("container %q: %w", id, arbiter.ErrNoInstance)
		}
		return 1, fmt.Errorf("wait for container %q: %w", id, err)
	case <-ctx.Done():
		return 1, ctx.Err()
	}
}

// ImageRef returns the image reference the container was created from.
func (r *Runtime) ImageRef(ctx context.Context, id string) (string, error) {
	info, err := r.cli.ContainerInspect(ctx, id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", fmt.Errorf("container %q: %w", id, arbiter.ErrNoInstance)
		}
		return "", fmt.Errorf("inspect container %q: %w", id, err)
	}
	if info.Config != nil && info.Config.Image != "" {
		return info.Config.Image, nil
	}
	return info.Image, nil
}

func (r *Runtime) Close() error {
	return r.cli.Close()
}
