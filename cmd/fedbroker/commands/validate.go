package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fedbroker/fedbroker/pkg/config"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the broker configuration file",
		Long: `Validate the broker configuration file.

This command checks:
  - YAML syntax validity
  - Required fields and value constraints
  - Duplicate cloud names and self-referencing peers`,
		Example: `  # Validate the default config file
  fedbroker validate

  # Validate a specific file
  fedbroker validate --config /etc/fedbroker/fedbroker.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			fmt.Printf("Configuration is valid.\n")
			fmt.Printf("  member:  %s\n", cfg.Member)
			fmt.Printf("  listen:  %s\n", cfg.ListenAddress)
			fmt.Printf("  clouds:  %d\n", len(cfg.Clouds))
			fmt.Printf("  peers:   %d\n", len(cfg.Peers))
			return nil
		},
	}
}
