package arbiter_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"warden"
	"warden/internal/adapter/fake"
	"warden/internal/arbiter"
)

func TestWait_LocalPathRecordsStableVersion(t *testing.T) {
	arb, store, rt := newTestArbiter(t)
	store.Configs["dns"] = warden.FeatureConfig{Name: "dns", OwnerPref: warden.OwnerLocal}
	store.SetState("dns", warden.FeatureState{CurrentOwner: warden.OwnerLocal, InstanceID: "dns", Up: true})
	rt.Image = "registry.example.com/dns:1.4.2"
	rt.WaitStatus = 0

	code, err := arb.Wait(context.Background(), "dns")
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 0 {
		t.Errorf("exit status = %d, want 0", code)
	}
	if got := store.States["dns"].StableVersion; got != rt.Image {
		t.Errorf("stable version = %q, want %q", got, rt.Image)
	}
	if !slices.Contains(store.Journal.Entries(), "runtime.wait dns") {
		t.Errorf("blocking wait not invoked, journal %v", store.Journal.Entries())
	}
}

func TestWait_PropagatesExitStatus(t *testing.T) {
	arb, store, rt := newTestArbiter(t)
	store.Configs["dns"] = warden.FeatureConfig{Name: "dns", OwnerPref: warden.OwnerLocal}
	store.SetState("dns", warden.FeatureState{CurrentOwner: warden.OwnerLocal, InstanceID: "dns"})
	rt.WaitStatus = 137

	code, err := arb.Wait(context.Background(), "dns")
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 137 {
		t.Errorf("exit status = %d, want the instance's own status", code)
	}
}

func TestWait_FallbackWindowExhausted(t *testing.T) {
	arb, store, _ := newTestArbiter(t)
	store.Configs["metrics"] = warden.FeatureConfig{
		Name:            "metrics",
		OwnerPref:       warden.OwnerRemote,
		FallbackAllowed: true,
	}
	store.SetState("metrics", warden.FeatureState{
		CurrentOwner: warden.OwnerRemote,
		RemoteState:  warden.RemoteReady,
	})

	clock := fake.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	arb.Clock = clock
	arb.PendingWindow = 4 * time.Second
	arb.PollInterval = 2 * time.Second

	code, err := arb.Wait(context.Background(), "metrics")
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 0 {
		t.Errorf("exit status = %d, exhaustion is a deliberate non-failure", code)
	}

	// Window 4 / interval 2: exactly two poll iterations.
	if sleeps := clock.Sleeps(); len(sleeps) != 2 {
		t.Errorf("poll iterations = %d (%v), want 2", len(sleeps), sleeps)
	}
	if got := store.States["metrics"].RemoteState; got != warden.RemoteNone {
		t.Errorf("remote state = %s, want reset to none", got)
	}

	// No instance ever appeared, so nothing may reach the runtime.
	for _, e := range store.Journal.Entries() {
		if e == "runtime.wait metrics" {
			t.Error("blocking wait must not run without an instance id")
		}
	}
}

func TestWait_AdvancesPendingToReady(t *testing.T) {
	arb, store, _ := newTestArbiter(t)
	store.Configs["metrics"] = warden.FeatureConfig{
		Name:            "metrics",
		OwnerPref:       warden.OwnerRemote,
		FallbackAllowed: true,
	}
	store.SetState("metrics", warden.FeatureState{
		CurrentOwner: warden.OwnerRemote,
		RemoteState:  warden.RemotePending,
	})

	arb.Clock = fake.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	arb.PendingWindow = 2 * time.Second
	arb.PollInterval = 2 * time.Second

	if _, err := arb.Wait(context.Background(), "metrics"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !slices.Contains(store.Journal.Entries(), "state.remote metrics ready") {
		t.Errorf("pending should advance to ready, journal %v", store.Journal.Entries())
	}
}

func TestWait_InstanceAppearsMidPoll(t *testing.T) {
	arb, store, rt := newTestArbiter(t)
	store.Configs["metrics"] = warden.FeatureConfig{
		Name:            "metrics",
		OwnerPref:       warden.OwnerRemote,
		FallbackAllowed: true,
	}
	store.SetState("metrics", warden.FeatureState{CurrentOwner: warden.OwnerRemote})

	clock := fake.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var polls int
	clock.OnSleep = func(time.Duration) {
		polls++
		if polls == 3 {
			// The remote scheduler writes the instance back.
			store.SetState("metrics", warden.FeatureState{
				CurrentOwner: warden.OwnerRemote,
				RemoteState:  warden.RemoteRunning,
				InstanceID:   "metrics-7f2a",
			})
		}
	}
	arb.Clock = clock
	arb.PendingWindow = 300 * time.Second
	arb.PollInterval = 2 * time.Second
	rt.WaitStatus = 3

	code, err := arb.Wait(context.Background(), "metrics")
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 3 {
		t.Errorf("exit status = %d, want runtime status", code)
	}
	if polls != 3 {
		t.Errorf("poll iterations = %d, want 3 (loop exits once the id shows up)", polls)
	}
	if !slices.Contains(store.Journal.Entries(), "runtime.wait metrics-7f2a") {
		t.Errorf("blocking wait should target the scheduler-supplied id, journal %v", store.Journal.Entries())
	}
	// Remote-path wait never records a stable version.
	if v := store.States["metrics"].StableVersion; v != "" {
		t.Errorf("stable version = %q, want empty on the remote path", v)
	}
}

func TestWait_NoInstanceNoFallback(t *testing.T) {
	arb, store, _ := newTestArbiter(t)
	store.Configs["metrics"] = warden.FeatureConfig{Name: "metrics", OwnerPref: warden.OwnerRemote}

	_, err := arb.Wait(context.Background(), "metrics")
	if !errors.Is(err, arbiter.ErrNoInstance) {
		t.Fatalf("Wait error = %v, want ErrNoInstance", err)
	}
}

func TestWait_DefaultsWhenUnconfigured(t *testing.T) {
	arb, store, _ := newTestArbiter(t)
	store.Configs["metrics"] = warden.FeatureConfig{
		Name:            "metrics",
		OwnerPref:       warden.OwnerRemote,
		FallbackAllowed: true,
	}

	clock := fake.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	arb.Clock = clock
	// Zero PendingWindow/PollInterval fall back to the built-in defaults.

	code, err := arb.Wait(context.Background(), "metrics")
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 0 {
		t.Errorf("exit status = %d, want 0", code)
	}
	if sleeps := clock.Sleeps(); len(sleeps) != 150 {
		t.Errorf("poll iterations = %d, want 150 (300s window / 2s interval)", len(sleeps))
	}
}
