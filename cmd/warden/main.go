// Command warden arbitrates whether the local supervisor or the remote
// cluster scheduler runs each managed feature, with automatic local fallback
// when remote scheduling stalls.
//
// Each invocation is one short-lived lifecycle operation; the invoking
// supervisor guarantees at most one in-flight invocation per feature.
package main

import (
	"fmt"
	"os"

	"warden/internal/logging"

	"github.com/spf13/cobra"
)

const defaultDataRoot = "/var/lib/warden"

func main() {
	var (
		debug    bool
		dataRoot string
	)
	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "warden",
		Short:         "Feature ownership arbitration between local and remote schedulers",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&dataRoot, "data-root", defaultRoot(), "State directory")

	root.AddCommand(startCmd(&dataRoot))
	root.AddCommand(stopCmd(&dataRoot))
	root.AddCommand(killCmd(&dataRoot))
	root.AddCommand(waitCmd(&dataRoot))
	root.AddCommand(idCmd(&dataRoot))
	root.AddCommand(statusCmd(&dataRoot))
	root.AddCommand(featureCmd(&dataRoot))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// defaultRoot resolves the state directory: WARDEN_DATA_ROOT wins, then the
// system default.
func defaultRoot() string {
	if root := os.Getenv("WARDEN_DATA_ROOT"); root != "" {
		return root
	}
	return defaultDataRoot
}
