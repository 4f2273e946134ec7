package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// CheckReady pings the Docker daemon once. Lifecycle invocations are
// short-lived, so an unreachable daemon is reported immediately rather than
// waited out.
func (r *Runtime) CheckReady(ctx context.Context) error {
	if _, err := r.cli.Ping(ctx); err != nil {
		if client.IsErrConnectionFailed(err) {
			return fmt.Errorf("docker daemon unreachable: %w", err)
		}
		return fmt.Errorf("ping docker daemon: %w", err)
	}
	return nil
}
