package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"warden/config"
	"warden/internal/adapter/docker"
	"warden/internal/adapter/sqlite"
	"warden/internal/arbiter"

	"github.com/spf13/cobra"
)

// deps bundles the wired collaborators behind one Close.
type deps struct {
	store   *sqlite.Store
	runtime *docker.Runtime
	arbiter *arbiter.Arbiter
}

func (d *deps) Close() {
	if d.runtime != nil {
		_ = d.runtime.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

// openDeps wires the sqlite state store and docker runtime into an arbiter.
// The operator config file only tunes the fallback poll loop.
func openDeps(ctx context.Context, dataRoot string) (*deps, error) {
	store, err := sqlite.Open(filepath.Join(dataRoot, "state.db"))
	if err != nil {
		return nil, err
	}
	rt, err := docker.NewRuntime()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := rt.CheckReady(ctx); err != nil {
		_ = rt.Close()
		_ = store.Close()
		return nil, err
	}

	settings := config.Load()
	return &deps{
		store:   store,
		runtime: rt,
		arbiter: &arbiter.Arbiter{
			Config:        store,
			State:         store,
			Labels:        store,
			Runtime:       rt,
			PendingWindow: settings.PendingWindow(),
			PollInterval:  settings.PollInterval(),
		},
	}, nil
}

// opContext is the lifetime of one lifecycle invocation: cancelled by the
// supervisor's signal, never by an internal timeout.
func opContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func startCmd(dataRoot *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start FEATURE",
		Short: "Start a feature under the arbitrated owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opContext(cmd)
			defer cancel()

			d, err := openDeps(ctx, *dataRoot)
			if err != nil {
				return err
			}
			defer d.Close()
			return d.arbiter.Start(ctx, args[0])
		},
	}
}

func stopCmd(dataRoot *string) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "stop FEATURE",
		Short: "Stop a feature and write its terminal state record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opContext(cmd)
			defer cancel()

			d, err := openDeps(ctx, *dataRoot)
			if err != nil {
				return err
			}
			defer d.Close()
			return d.arbiter.Stop(ctx, args[0], timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop grace period (0 uses the runtime default)")
	return cmd
}

func killCmd(dataRoot *string) *cobra.Command {
	return &cobra.Command{
		Use:   "kill FEATURE",
		Short: "Forcibly terminate a feature's instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opContext(cmd)
			defer cancel()

			d, err := openDeps(ctx, *dataRoot)
			if err != nil {
				return err
			}
			defer d.Close()
			return d.arbiter.Kill(ctx, args[0])
		},
	}
}

func waitCmd(dataRoot *string) *cobra.Command {
	return &cobra.Command{
		Use:   "wait FEATURE",
		Short: "Block until the feature's instance terminates",
		Long: `Block until the feature's instance terminates and exit with its status.

When no instance is addressable yet and fallback is allowed, wait polls the
state store for the pending window, then exits successfully so the supervisor
restarts the feature onto the local-fallback path.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opContext(cmd)
			defer cancel()

			d, err := openDeps(ctx, *dataRoot)
			if err != nil {
				return err
			}

			code, err := d.arbiter.Wait(ctx, args[0])
			d.Close()
			if err != nil {
				return err
			}
			if code != 0 {
				// Propagate the instance's own exit status.
				os.Exit(code)
			}
			return nil
		},
	}
}

func idCmd(dataRoot *string) *cobra.Command {
	return &cobra.Command{
		Use:   "id FEATURE",
		Short: "Print the feature's resolved instance identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opContext(cmd)
			defer cancel()

			store, err := sqlite.Open(filepath.Join(*dataRoot, "state.db"))
			if err != nil {
				return err
			}
			defer store.Close()

			st, err := store.FeatureState(ctx, args[0])
			if err != nil {
				return err
			}
			id := st.ResolveInstanceID()
			if id == "" {
				return fmt.Errorf("feature %q has no instance", args[0])
			}
			fmt.Println(id)
			return nil
		},
	}
}
