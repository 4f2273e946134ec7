package arbiter

import (
	"context"
	"time"

	"warden"
)

// ConfigStore reads static per-feature configuration.
// Production: adapter/sqlite.Store. Testing: fake.Store.
type ConfigStore interface {
	// FeatureConfig returns the config row for a feature.
	// The bool is false when the feature is not configured.
	FeatureConfig(ctx context.Context, name string) (warden.FeatureConfig, bool, error)
}

// StateStore reads and writes live per-feature state plus the global
// connectivity record. Writes are per-field: the remote scheduler updates
// RemoteState and InstanceID concurrently, and a whole-row write would
// clobber it. Every setter bumps the row's update timestamp.
type StateStore interface {
	FeatureState(ctx context.Context, name string) (warden.FeatureState, error)
	SetOwner(ctx context.Context, name string, owner warden.Owner, instanceID string) error
	SetRemoteState(ctx context.Context, name string, rs warden.RemoteState) error
	SetSystemUp(ctx context.Context, name string, up bool) error
	SetStableVersion(ctx context.Context, name, version string) error
	Connectivity(ctx context.Context) (warden.Connectivity, error)
}

// LabelSignal sets the per-feature deploy trigger consumed by the remote
// scheduler. Setting it is fire-and-forget: the scheduler reacts on its own
// time and reports progress through the state store.
type LabelSignal interface {
	SetDeploy(ctx context.Context, name string, deploy bool) error
}

// Runtime is the narrow surface of the local container runtime the arbiter
// drives. Instances are addressed by id (see FeatureState.ResolveInstanceID).
type Runtime interface {
	Start(ctx context.Context, id string) error
	// Stop stops an instance. A zero timeout uses the runtime's default
	// grace period.
	Stop(ctx context.Context, id string, timeout time.Duration) error
	Kill(ctx context.Context, id string) error
	// Wait blocks until the instance terminates and returns its exit status.
	Wait(ctx context.Context, id string) (int, error)
	// ImageRef returns the image reference the instance was created from.
	ImageRef(ctx context.Context, id string) (string, error)
}

// Clock abstracts time for the fallback poll loop.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock implements Clock using the real system clock.
type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }
