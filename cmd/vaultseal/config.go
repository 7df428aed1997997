package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TheMichaelB/vaultseal/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage vaultseal configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example configuration file",
	Long: `Init writes the default configuration to path (vaultseal.yaml by default).
A .json extension selects JSON. Existing files are never overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "vaultseal.yaml"
		if len(args) == 1 {
			path = args[0]
		}

		if err := config.SaveExample(path); err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		if jsonOutput {
			printJSON(map[string]interface{}{"success": true, "path": path})
			return nil
		}
		printSuccess("Wrote example configuration to %s", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Show prints the configuration after files, environment and flags are merged.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			printJSON(cfg)
			return nil
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		return enc.Close()
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
