package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"warden/internal/arbiter"
)

var _ arbiter.Runtime = (*Runtime)(nil)

// Runtime is an in-memory container runtime for testing. Calls are recorded
// in the shared Journal; errors and the wait status are configurable.
type Runtime struct {
	mu sync.Mutex

	StartErr error
	StopErr  error
	KillErr  error
	WaitErr  error

	WaitStatus int
	Image      string
	ImageErr   error

	Journal *Journal
}

// NewRuntime creates a Runtime recording into the given journal.
func NewRuntime(j *Journal) *Runtime {
	if j == nil {
		j = NewJournal()
	}
	return &Runtime{Journal: j}
}

func (r *Runtime) Start(_ context.Context, id string) error {
	r.Journal.Record(fmt.Sprintf("runtime.start %s", id))
	return r.StartErr
}

func (r *Runtime) Stop(_ context.Context, id string, timeout time.Duration) error {
	r.Journal.Record(fmt.Sprintf("runtime.stop %s %s", id, timeout))
	return r.StopErr
}

func (r *Runtime) Kill(_ context.Context, id string) error {
	r.Journal.Record(fmt.Sprintf("runtime.kill %s", id))
	return r.KillErr
}

func (r *Runtime) Wait(_ context.Context, id string) (int, error) {
	r.Journal.Record(fmt.Sprintf("runtime.wait %s", id))
	return r.WaitStatus, r.WaitErr
}

func (r *Runtime) ImageRef(_ context.Context, id string) (string, error) {
	r.Journal.Record(fmt.Sprintf("runtime.image %s", id))
	return r.Image, r.ImageErr
}
