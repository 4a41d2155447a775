// Package commands implements the savings admin CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"savings/internal/cli"
	"savings/internal/config"
	"savings/internal/log"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "savings",
		Short: "Monthly savings reconciliation admin tool",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newReconcileCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newMigrateCommand())

	return rootCmd
}

// loadConfig reads .env and the environment, returning validation problems
// as an error instead of exiting.
func loadConfig() (*config.Config, *log.Logger, error) {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentCLI)
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, logger, nil
}
