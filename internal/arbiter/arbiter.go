// Package arbiter decides, per feature, whether the local supervisor or the
// remote cluster scheduler owns the running instance, and drives the
// lifecycle accordingly.
//
// Each lifecycle method is a short-lived, single-threaded invocation. The
// arbiter performs no internal locking: the invoking supervisor guarantees at
// most one in-flight invocation per feature, and concurrent invocations for
// the same feature are undefined behavior. Concurrent writers to other
// fields of the shared state (the remote scheduler) are expected and handled
// by reading fresh state on every decision.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"warden"
	"warden/internal/check"
)

const (
	// DefaultPendingWindow bounds how long wait will poll for a
	// remote-scheduled instance to appear before reverting to fallback.
	DefaultPendingWindow = 300 * time.Second

	// DefaultPollInterval is the sleep between state re-reads in the
	// fallback poll loop.
	DefaultPollInterval = 2 * time.Second
)

// startMode is the bitmask of owners a start invocation engages.
type startMode uint8

const (
	modeLocal startMode = 1 << iota
	modeRemote
)

// Arbiter is the ownership-arbitration core. All collaborators are injected;
// Clock, PendingWindow and PollInterval may be left zero for defaults.
type Arbiter struct {
	Config  ConfigStore
	State   StateStore
	Labels  LabelSignal
	Runtime Runtime

	Clock         Clock
	PendingWindow time.Duration
	PollInterval  time.Duration
}

func (a *Arbiter) assertWired() {
	check.Assert(a.Config != nil, "Arbiter: ConfigStore must not be nil")
	check.Assert(a.State != nil, "Arbiter: StateStore must not be nil")
	check.Assert(a.Labels != nil, "Arbiter: LabelSignal must not be nil")
	check.Assert(a.Runtime != nil, "Arbiter: Runtime must not be nil")
}

func (a *Arbiter) clock() Clock {
	if a.Clock != nil {
		return a.Clock
	}
	return RealClock{}
}

// Start decides who runs the feature and brings it up.
//
// A local owner preference always runs locally. A remote preference signals
// the remote scheduler through the deploy label and, when fallback is allowed
// and the remote side has not yet engaged (no remote state, or the cluster is
// unreachable), additionally starts the feature locally so it is not left
// waiting on a scheduler that may never answer.
//
// Intent is persisted before the runtime is invoked, so the state store
// reflects the decision even if the runtime call fails or the process dies.
func (a *Arbiter) Start(ctx context.Context, name string) error {
	a.assertWired()
	cfg, ok, err := a.Config.FeatureConfig(ctx, name)
	if err != nil {
		return fmt.Errorf("read feature config: %w", err)
	}
	if !ok {
		return fmt.Errorf("feature %q: %w", name, ErrNotConfigured)
	}
	st, err := a.State.FeatureState(ctx, name)
	if err != nil {
		return fmt.Errorf("read feature state: %w", err)
	}
	conn, err := a.State.Connectivity(ctx)
	if err != nil {
		return fmt.Errorf("read cluster connectivity: %w", err)
	}

	mode := modeLocal
	if cfg.OwnerPref == warden.OwnerRemote {
		mode = modeRemote
		if cfg.FallbackAllowed && (st.RemoteState == warden.RemoteNone || !conn.Connected) {
			mode |= modeLocal
		}
	}
	slog.Debug("start decision",
		"feature", name,
		"owner_pref", cfg.OwnerPref,
		"remote_state", st.RemoteState,
		"connected", conn.Connected,
		"local", mode&modeLocal != 0,
		"remote", mode&modeRemote != 0)

	if mode == modeLocal {
		// Purely local: make sure the remote scheduler neither deploys
		// nor thinks it still owns anything.
		if err := a.Labels.SetDeploy(ctx, name, false); err != nil {
			return fmt.Errorf("clear deploy label: %w", err)
		}
		if err := a.State.SetRemoteState(ctx, name, warden.RemoteNone); err != nil {
			return fmt.Errorf("reset remote state: %w", err)
		}
	}
	if mode&modeLocal != 0 {
		if err := a.State.SetOwner(ctx, name, warden.OwnerLocal, name); err != nil {
			return fmt.Errorf("record local ownership: %w", err)
		}
	}
	if err := a.State.SetSystemUp(ctx, name, true); err != nil {
		return fmt.Errorf("record system up: %w", err)
	}

	var startErr error
	if mode&modeLocal != 0 {
		if startErr = a.Runtime.Start(ctx, name); startErr != nil {
			slog.Error("local runtime start failed", "feature", name, "err", startErr)
			startErr = fmt.Errorf("start instance %q: %w", name, startErr)
		}
	}
	if mode&modeRemote != 0 {
		// Fire-and-forget trigger. The scheduler writes remote state and
		// the instance id back once it schedules; a label write failure is
		// not a start failure on the remote path.
		if err := a.Labels.SetDeploy(ctx, name, true); err != nil {
			slog.Error("set deploy label failed", "feature", name, "err", err)
		}
	}
	return startErr
}

// Stop stops the feature's instance, if any, and unconditionally writes the
// terminal quiescent record. The supervisor, not the instance, owns the
// authoritative "down" record: it is written even when the instance already
// crashed or was killed out-of-band, and even when the runtime stop fails.
//
// The deploy label is cleared only for a locally preferred feature. A
// transient local stop of a remote-owned feature must not instruct the
// remote scheduler to deprovision it.
//
// A zero timeout uses the runtime's default grace period.
func (a *Arbiter) Stop(ctx context.Context, name string, timeout time.Duration) error {
	a.assertWired()
	cfg, _, err := a.Config.FeatureConfig(ctx, name)
	if err != nil {
		return fmt.Errorf("read feature config: %w", err)
	}
	st, err := a.State.FeatureState(ctx, name)
	if err != nil {
		return fmt.Errorf("read feature state: %w", err)
	}

	if cfg.OwnerPref == warden.OwnerLocal {
		if err := a.Labels.SetDeploy(ctx, name, false); err != nil {
			return fmt.Errorf("clear deploy label: %w", err)
		}
	}

	var stopErr error
	if id := st.ResolveInstanceID(); id != "" {
		if err := a.Runtime.Stop(ctx, id, timeout); err != nil {
			slog.Error("runtime stop failed", "feature", name, "instance", id, "err", err)
			stopErr = fmt.Errorf("stop instance %q: %w", id, err)
		}
	} else {
		a.logMissingInstance(name, st.CurrentOwner, "stop")
	}

	if err := a.writeTerminalRecord(ctx, name, st.RemoteState); err != nil {
		return errors.Join(stopErr, err)
	}
	return stopErr
}

// writeTerminalRecord persists the quiescent state: no owner, no instance,
// system down. A running remote state advances to stopped; any other remote
// state is left for the scheduler to manage.
func (a *Arbiter) writeTerminalRecord(ctx context.Context, name string, prior warden.RemoteState) error {
	if err := a.State.SetOwner(ctx, name, warden.OwnerNone, ""); err != nil {
		return fmt.Errorf("clear ownership: %w", err)
	}
	if prior == warden.RemoteRunning {
		if err := a.State.SetRemoteState(ctx, name, warden.RemoteStopped); err != nil {
			return fmt.Errorf("record remote stopped: %w", err)
		}
	}
	if err := a.State.SetSystemUp(ctx, name, false); err != nil {
		return fmt.Errorf("record system down: %w", err)
	}
	return nil
}

// Kill forcibly terminates the feature's instance. It is a harder detach
// than Stop: the deploy label is cleared unless both the config and the live
// state agree the feature is purely local.
//
// Killing a locally preferred feature whose desired state is not enabled is
// rejected outright before any side effect. Kill does not rewrite live state
// beyond the label; the terminal record is written by the stop or crash
// notification that follows.
func (a *Arbiter) Kill(ctx context.Context, name string) error {
	a.assertWired()
	cfg, _, err := a.Config.FeatureConfig(ctx, name)
	if err != nil {
		return fmt.Errorf("read feature config: %w", err)
	}
	st, err := a.State.FeatureState(ctx, name)
	if err != nil {
		return fmt.Errorf("read feature state: %w", err)
	}

	if cfg.OwnerPref == warden.OwnerLocal && !cfg.DesiredEnabled() {
		return fmt.Errorf("kill feature %q (desired state %s): %w",
			name, cfg.DesiredState, ErrNotEnabled)
	}

	if cfg.OwnerPref != warden.OwnerLocal || st.CurrentOwner != warden.OwnerLocal {
		if err := a.Labels.SetDeploy(ctx, name, false); err != nil {
			return fmt.Errorf("clear deploy label: %w", err)
		}
	}

	if id := st.ResolveInstanceID(); id != "" {
		if err := a.Runtime.Kill(ctx, id); err != nil {
			slog.Error("runtime kill failed", "feature", name, "instance", id, "err", err)
			return fmt.Errorf("kill instance %q: %w", id, err)
		}
	} else {
		a.logMissingInstance(name, st.CurrentOwner, "kill")
	}
	return nil
}

// InstanceID resolves the runtime handle for the feature from live state.
func (a *Arbiter) InstanceID(ctx context.Context, name string) (string, error) {
	st, err := a.State.FeatureState(ctx, name)
	if err != nil {
		return "", fmt.Errorf("read feature state: %w", err)
	}
	return st.ResolveInstanceID(), nil
}

// logMissingInstance logs an unresolvable instance id. It is unexpected (an
// error) when live state still claims an owner, routine otherwise.
func (a *Arbiter) logMissingInstance(name string, owner warden.Owner, op string) {
	if owner != warden.OwnerNone {
		slog.Error("no instance id for owned feature", "feature", name, "owner", owner, "op", op)
		return
	}
	slog.Info("no instance to act on", "feature", name, "op", op)
}
