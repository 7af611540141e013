package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var configPath string

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fedbroker",
		Short: "Multi-cloud resource federation broker",
		Long: `fedbroker brokers cloud resource orders across a federation of members.

Each member runs one broker: it accepts orders for its own clouds, forwards
orders addressed at other members over the federation channel, and
reconciles every order through its lifecycle until the requested instance
is ready or the order is torn down.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "fedbroker.yaml", "config file path")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}
