package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"warden"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFeatureConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.FeatureConfig(ctx, "dns"); err != nil || ok {
		t.Fatalf("unconfigured feature: ok=%v err=%v, want absent", ok, err)
	}

	want := warden.FeatureConfig{
		Name:            "dns",
		OwnerPref:       warden.OwnerRemote,
		FallbackAllowed: true,
		DesiredState:    warden.AlwaysEnabled,
	}
	if err := s.SaveFeatureConfig(ctx, want); err != nil {
		t.Fatalf("save config: %v", err)
	}

	got, ok, err := s.FeatureConfig(ctx, "dns")
	if err != nil || !ok {
		t.Fatalf("read config: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("config = %+v, want %+v", got, want)
	}

	// Overwrite.
	want.OwnerPref = warden.OwnerLocal
	want.FallbackAllowed = false
	if err := s.SaveFeatureConfig(ctx, want); err != nil {
		t.Fatalf("resave config: %v", err)
	}
	got, _, _ = s.FeatureConfig(ctx, "dns")
	if got != want {
		t.Errorf("config after overwrite = %+v, want %+v", got, want)
	}
}

func TestFeatureStateZeroValue(t *testing.T) {
	s := openTestStore(t)

	st, err := s.FeatureState(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if st.CurrentOwner != warden.OwnerNone || st.RemoteState != warden.RemoteNone ||
		st.InstanceID != "" || st.Up {
		t.Errorf("zero state = %+v, want none/none/empty/down", st)
	}
}

func TestPerFieldWritesDoNotClobber(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// The supervisor records local intent...
	if err := s.SetOwner(ctx, "dns", warden.OwnerLocal, "dns"); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	// ...the remote scheduler writes its state concurrently...
	if err := s.SetRemoteState(ctx, "dns", warden.RemotePending); err != nil {
		t.Fatalf("set remote state: %v", err)
	}
	// ...and the supervisor's next write must not erase it.
	if err := s.SetSystemUp(ctx, "dns", true); err != nil {
		t.Fatalf("set system up: %v", err)
	}

	st, err := s.FeatureState(ctx, "dns")
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if st.CurrentOwner != warden.OwnerLocal || st.InstanceID != "dns" {
		t.Errorf("ownership lost: %+v", st)
	}
	if st.RemoteState != warden.RemotePending {
		t.Errorf("remote state lost: %+v", st)
	}
	if !st.Up {
		t.Errorf("system state lost: %+v", st)
	}
	if st.UpdatedAt.IsZero() {
		t.Error("updated_at should be set")
	}
}

func TestStableVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetStableVersion(ctx, "dns", "registry.example.com/dns:1.4.2"); err != nil {
		t.Fatalf("set stable version: %v", err)
	}
	st, err := s.FeatureState(ctx, "dns")
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if st.StableVersion != "registry.example.com/dns:1.4.2" {
		t.Errorf("stable version = %q", st.StableVersion)
	}
}

func TestDeployLabel(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if deploy, err := s.Deploy(ctx, "dns"); err != nil || deploy {
		t.Fatalf("unset label: deploy=%v err=%v, want false", deploy, err)
	}
	if err := s.SetDeploy(ctx, "dns", true); err != nil {
		t.Fatalf("set label: %v", err)
	}
	if deploy, _ := s.Deploy(ctx, "dns"); !deploy {
		t.Error("label should be set")
	}
	if err := s.SetDeploy(ctx, "dns", false); err != nil {
		t.Fatalf("clear label: %v", err)
	}
	if deploy, _ := s.Deploy(ctx, "dns"); deploy {
		t.Error("label should be cleared")
	}
}

func TestConnectivityDefaultsToDisconnected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conn, err := s.Connectivity(ctx)
	if err != nil {
		t.Fatalf("read connectivity: %v", err)
	}
	if conn.Connected {
		t.Error("absent record should read as disconnected")
	}

	if err := s.SetConnectivity(ctx, true); err != nil {
		t.Fatalf("set connectivity: %v", err)
	}
	conn, _ = s.Connectivity(ctx)
	if !conn.Connected {
		t.Error("connectivity should be recorded")
	}
	if conn.UpdatedAt.IsZero() {
		t.Error("updated_at should be set")
	}
}

func TestListFeatureConfigs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, cfg := range []warden.FeatureConfig{
		{Name: "metrics", OwnerPref: warden.OwnerRemote, FallbackAllowed: true, DesiredState: warden.Enabled},
		{Name: "dns", OwnerPref: warden.OwnerLocal, DesiredState: warden.AlwaysEnabled},
	} {
		if err := s.SaveFeatureConfig(ctx, cfg); err != nil {
			t.Fatalf("save %s: %v", cfg.Name, err)
		}
	}

	got, err := s.ListFeatureConfigs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Name != "dns" || got[1].Name != "metrics" {
		t.Errorf("list = %+v, want dns then metrics", got)
	}
}
