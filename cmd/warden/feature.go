package main

import (
	"fmt"
	"path/filepath"

	"warden"
	"warden/internal/adapter/sqlite"

	"github.com/spf13/cobra"
)

func featureCmd(dataRoot *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feature",
		Short: "Manage static feature configuration",
	}
	cmd.AddCommand(featureSetCmd(dataRoot))
	return cmd
}

func featureSetCmd(dataRoot *string) *cobra.Command {
	var (
		owner    string
		fallback bool
		desired  string
	)
	cmd := &cobra.Command{
		Use:   "set FEATURE",
		Short: "Create or update a feature's config row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := warden.FeatureConfig{
				Name:            args[0],
				OwnerPref:       warden.Owner(owner),
				FallbackAllowed: fallback,
				DesiredState:    warden.DesiredState(desired),
			}
			if err := validateConfig(cfg); err != nil {
				return err
			}

			store, err := sqlite.Open(filepath.Join(*dataRoot, "state.db"))
			if err != nil {
				return err
			}
			defer store.Close()

			return store.SaveFeatureConfig(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "local", "Owner preference: local or remote")
	cmd.Flags().BoolVar(&fallback, "fallback", false, "Allow local fallback while remote scheduling is pending")
	cmd.Flags().StringVar(&desired, "desired", "enabled", "Desired state: disabled, enabled or always_enabled")
	return cmd
}

func validateConfig(cfg warden.FeatureConfig) error {
	switch cfg.OwnerPref {
	case warden.OwnerLocal, warden.OwnerRemote:
	default:
		return fmt.Errorf("invalid owner preference %q", cfg.OwnerPref)
	}
	switch cfg.DesiredState {
	case warden.Disabled, warden.Enabled, warden.AlwaysEnabled:
	default:
		return fmt.Errorf("invalid desired state %q", cfg.DesiredState)
	}
	return nil
}
