package warden

import "time"

// Owner identifies which scheduler is responsible for running a feature's
// instance: the local supervisor or the remote cluster scheduler.
type Owner string

const (
	OwnerNone   Owner = "none"
	OwnerLocal  Owner = "local"
	OwnerRemote Owner = "remote"
)

// RemoteState is the remote scheduler's view of a feature, written back by
// the scheduler itself once it picks the feature up.
type RemoteState string

const (
	RemoteNone    RemoteState = "none"
	RemotePending RemoteState = "pending"
	RemoteReady   RemoteState = "ready"
	RemoteRunning RemoteState = "running"
	RemoteStopped RemoteState = "stopped"
)

// DesiredState is the administrative state an operator configured for a
// feature, independent of what is currently running.
type DesiredState string

const (
	Disabled      DesiredState = "disabled"
	Enabled       DesiredState = "enabled"
	AlwaysEnabled DesiredState = "always_enabled"
)

// FeatureConfig is the static per-feature configuration row.
type FeatureConfig struct {
	Name            string
	OwnerPref       Owner
	FallbackAllowed bool
	DesiredState    DesiredState
}

// DesiredEnabled reports whether the feature is administratively enabled.
func (c FeatureConfig) DesiredEnabled() bool {
	return c.DesiredState == Enabled || c.DesiredState == AlwaysEnabled
}

// FeatureState is the live per-feature state row. It is created implicitly on
// the first start and shared with the remote scheduler, which writes
// RemoteState and InstanceID once it schedules the feature.
//
// A locally owned feature is always addressed by its own name, so
// CurrentOwner == OwnerLocal implies InstanceID == Name.
type FeatureState struct {
	Name          string
	CurrentOwner  Owner
	RemoteState   RemoteState
	InstanceID    string
	Up            bool
	UpdatedAt     time.Time
	StableVersion string
}

// ResolveInstanceID resolves the runtime handle for a feature: locally owned
// features are addressed by name, remote ones by the scheduler-supplied id.
// Empty means no instance is currently addressable.
func (s FeatureState) ResolveInstanceID() string {
	if s.CurrentOwner == OwnerLocal {
		return s.Name
	}
	return s.InstanceID
}
