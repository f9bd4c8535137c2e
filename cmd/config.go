package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/micmetrics/internal/app"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage micmetrics configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write an example configuration with every default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.GenerateExampleConfig(args[0])
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.ValidateConfig(args[0])
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}
