package main

import (
	"context"
	"fmt"
	"path/filepath"

	"warden"
	"warden/cmd/warden/ui"
	"warden/internal/adapter/sqlite"

	"github.com/spf13/cobra"
)

func statusCmd(dataRoot *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status [FEATURE]",
		Short: "Show feature config and live state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := sqlite.Open(filepath.Join(*dataRoot, "state.db"))
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				return printFeatureStatus(ctx, store, args[0])
			}
			return printAllFeatures(ctx, store)
		},
	}
}

func printFeatureStatus(ctx context.Context, store *sqlite.Store, name string) error {
	cfg, ok, err := store.FeatureConfig(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("feature %q not configured", name)
	}
	st, err := store.FeatureState(ctx, name)
	if err != nil {
		return err
	}
	deploy, err := store.Deploy(ctx, name)
	if err != nil {
		return err
	}
	conn, err := store.Connectivity(ctx)
	if err != nil {
		return err
	}

	fmt.Println(ui.KeyValues("  ",
		ui.KV("Feature", name),
		ui.KV("Owner Pref", string(cfg.OwnerPref)),
		ui.KV("Fallback", ui.Bool(cfg.FallbackAllowed)),
		ui.KV("Desired", string(cfg.DesiredState)),
		ui.KV("Owner", string(st.CurrentOwner)),
		ui.KV("Remote State", string(st.RemoteState)),
		ui.KV("Instance", orDash(st.InstanceID)),
		ui.KV("System", upDown(st.Up)),
		ui.KV("Stable Version", orDash(st.StableVersion)),
		ui.KV("Deploy Label", ui.Bool(deploy)),
		ui.KV("Cluster", connected(conn)),
	))
	return nil
}

func printAllFeatures(ctx context.Context, store *sqlite.Store) error {
	configs, err := store.ListFeatureConfigs(ctx)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		fmt.Println(ui.MutedStyle.Render("no features configured"))
		return nil
	}

	rows := make([][]string, 0, len(configs))
	for _, cfg := range configs {
		st, err := store.FeatureState(ctx, cfg.Name)
		if err != nil {
			return err
		}
		deploy, err := store.Deploy(ctx, cfg.Name)
		if err != nil {
			return err
		}
		rows = append(rows, []string{
			cfg.Name,
			string(cfg.OwnerPref),
			fmt.Sprintf("%t", cfg.FallbackAllowed),
			string(st.CurrentOwner),
			string(st.RemoteState),
			orDash(st.InstanceID),
			upDown(st.Up),
			fmt.Sprintf("%t", deploy),
		})
	}

	fmt.Println(ui.Table(
		[]string{"FEATURE", "PREF", "FALLBACK", "OWNER", "REMOTE", "INSTANCE", "SYSTEM", "DEPLOY"},
		rows,
	))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func upDown(up bool) string {
	if up {
		return ui.SuccessStyle.Render("up")
	}
	return ui.MutedStyle.Render("down")
}

func connected(c warden.Connectivity) string {
	if c.Connected {
		return ui.SuccessStyle.Render("connected")
	}
	return ui.ErrorStyle.Render("disconnected")
}
