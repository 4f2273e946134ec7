package arbiter

import (
	"context"
	"fmt"
	"log/slog"

	"warden"
)

// Wait blocks until the feature's instance terminates and returns its exit
// status.
//
// When no instance is addressable yet and fallback is allowed, Wait polls
// the state store for a bounded pending window, giving the remote scheduler
// time to materialize an instance. If the window closes without one, the
// remote claim is reset and Wait returns success: the supervisor's restart
// policy then re-runs start, which takes the local-fallback path.
//
// Once an instance id is in hand the call hands off to the runtime's own
// blocking wait and, under normal operation, does not return until the
// instance exits.
func (a *Arbiter) Wait(ctx context.Context, name string) (int, error) {
	a.assertWired()
	cfg, _, err := a.Config.FeatureConfig(ctx, name)
	if err != nil {
		return 1, fmt.Errorf("read feature config: %w", err)
	}
	st, err := a.State.FeatureState(ctx, name)
	if err != nil {
		return 1, fmt.Errorf("read feature state: %w", err)
	}

	id := st.ResolveInstanceID()
	if id == "" && cfg.FallbackAllowed {
		id, err = a.awaitRemoteInstance(ctx, name)
		if err != nil {
			return 1, err
		}
		if id == "" {
			// Pending window exhausted. Reset the remote claim and
			// report success so the supervisor restarts us into a
			// fresh start, which will fall back to local execution.
			slog.Info("pending window exhausted, reverting to fallback", "feature", name)
			if err := a.State.SetRemoteState(ctx, name, warden.RemoteNone); err != nil {
				return 1, fmt.Errorf("reset remote state: %w", err)
			}
			return 0, nil
		}
	}
	if id == "" {
		a.logMissingInstance(name, st.CurrentOwner, "wait")
		return 1, fmt.Errorf("feature %q: %w", name, ErrNoInstance)
	}

	if id == name {
		// Local path: record the image the instance runs from, for audit.
		if ref, err := a.Runtime.ImageRef(ctx, id); err != nil {
			slog.Warn("image lookup failed", "feature", name, "err", err)
		} else if err := a.State.SetStableVersion(ctx, name, ref); err != nil {
			slog.Warn("record stable version failed", "feature", name, "err", err)
		}
	}

	slog.Debug("handing off to blocking runtime wait", "feature", name, "instance", id)
	return a.Runtime.Wait(ctx, id)
}

// awaitRemoteInstance is the bounded fallback poll loop. Each iteration
// sleeps one poll interval, then re-reads live state fresh, since the remote
// scheduler writes RemoteState and InstanceID concurrently. A pending remote
// state is advanced to ready to acknowledge the scheduler's progress.
//
// Returns the instance id once observable, or "" when the pending window is
// spent first.
func (a *Arbiter) awaitRemoteInstance(ctx context.Context, name string) (string, error) {
	window := a.PendingWindow
	if window <= 0 {
		window = DefaultPendingWindow
	}
	interval := a.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	clock := a.clock()

	slog.Debug("polling for remote instance", "feature", name, "window", window, "interval", interval)
	for remaining := window; remaining > 0; remaining -= interval {
		clock.Sleep(interval)
		if err := ctx.Err(); err != nil {
			return "", err
		}

		st, err := a.State.FeatureState(ctx, name)
		if err != nil {
			return "", fmt.Errorf("read feature state: %w", err)
		}
		if st.RemoteState == warden.RemotePending {
			if err := a.State.SetRemoteState(ctx, name, warden.RemoteReady); err != nil {
				return "", fmt.Errorf("advance remote state: %w", err)
			}
		}
		if id := st.ResolveInstanceID(); id != "" {
			return id, nil
		}
	}
	return "", nil
}
