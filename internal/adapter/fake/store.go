package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"warden"
	"warden/internal/arbiter"
)

var (
	_ arbiter.ConfigStore = (*Store)(nil)
	_ arbiter.StateStore  = (*Store)(nil)
	_ arbiter.LabelSignal = (*Store)(nil)
)

// Store is an in-memory config/state/label store for testing. Every mutation
// is appended to Calls so tests can assert ordering against runtime calls
// recorded in the same slice (share the store's Journal with a fake Runtime).
type Store struct {
	mu sync.Mutex

	Configs map[string]warden.FeatureConfig
	States  map[string]warden.FeatureState
	Labels  map[string]bool
	Conn    warden.Connectivity

	// StateErr, when set, fails every FeatureState read.
	StateErr error

	Journal *Journal
}

// NewStore creates an empty Store with a fresh journal.
func NewStore() *Store {
	return &Store{
		Configs: make(map[string]warden.FeatureConfig),
		States:  make(map[string]warden.FeatureState),
		Labels:  make(map[string]bool),
		Journal: NewJournal(),
	}
}

func (s *Store) FeatureConfig(_ context.Context, name string) (warden.FeatureConfig, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.Configs[name]
	return cfg, ok, nil
}

func (s *Store) FeatureState(_ context.Context, name string) (warden.FeatureState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StateErr != nil {
		return warden.FeatureState{}, s.StateErr
	}
	st := s.States[name]
	st.Name = name
	if st.CurrentOwner == "" {
		st.CurrentOwner = warden.OwnerNone
	}
	if st.RemoteState == "" {
		st.RemoteState = warden.RemoteNone
	}
	return st, nil
}

func (s *Store) SetOwner(_ context.Context, name string, owner warden.Owner, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.States[name]
	st.Name = name
	st.CurrentOwner = owner
	st.InstanceID = instanceID
	st.UpdatedAt = time.Now()
	s.States[name] = st
	s.Journal.Record(fmt.Sprintf("state.owner %s %s %q", name, owner, instanceID))
	return nil
}

func (s *Store) SetRemoteState(_ context.Context, name string, rs warden.RemoteState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.States[name]
	st.Name = name
	st.RemoteState = rs
	st.UpdatedAt = time.Now()
	s.States[name] = st
	s.Journal.Record(fmt.Sprintf("state.remote %s %s", name, rs))
	return nil
}

func (s *Store) SetSystemUp(_ context.Context, name string, up bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.States[name]
	st.Name = name
	st.Up = up
	st.UpdatedAt = time.Now()
	s.States[name] = st
	s.Journal.Record(fmt.Sprintf("state.up %s %t", name, up))
	return nil
}

func (s *Store) SetStableVersion(_ context.Context, name, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.States[name]
	st.Name = name
	st.StableVersion = version
	st.UpdatedAt = time.Now()
	s.States[name] = st
	s.Journal.Record(fmt.Sprintf("state.version %s %q", name, version))
	return nil
}

func (s *Store) Connectivity(context.Context) (warden.Connectivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn, nil
}

func (s *Store) SetDeploy(_ context.Context, name string, deploy bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Labels[name] = deploy
	s.Journal.Record(fmt.Sprintf("label %s %t", name, deploy))
	return nil
}

// SetState replaces a feature's state wholesale, bypassing the journal.
// Tests use it to simulate the remote scheduler writing state.
func (s *Store) SetState(name string, st warden.FeatureState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.Name = name
	s.States[name] = st
}

// Journal is an ordered log of side effects shared between fakes.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Record appends an entry.
func (j *Journal) Record(entry string) {
	j.mu.Lock()
	j.entries = append(j.entries, entry)
	j.mu.Unlock()
}

// Entries returns a copy of the recorded entries in order.
func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}
