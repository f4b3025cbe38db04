package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/phishguard/phish-triage/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  `Generate and validate phish-triage configuration files`,
}

var configGenCmd = &cobra.Command{
	Use:   "generate [config-file]",
	Short: "Generate default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) > 0 {
			path = args[0]
		}

		if _, err := os.Stat(path); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
			}
		}

		if err := config.DefaultConfig().SaveConfig(path); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("Configuration file generated: %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <config-file>",
	Short: "Validate configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(args[0])
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid: %s\n", args[0])
		fmt.Printf("  review threshold:  %d\n", cfg.Detection.PreScoreReviewThreshold)
		fmt.Printf("  deep threshold:    %d\n", cfg.Detection.PreScoreDeepThreshold)
		fmt.Printf("  context trigger:   %d\n", cfg.Detection.ContextTriggerScore)
		fmt.Printf("  fetcher enabled:   %v\n", cfg.Fetch.Enabled)
		fmt.Printf("  sandbox backend:   %s\n", cfg.Fetch.SandboxBackend)
		fmt.Printf("  judge enabled:     %v\n", cfg.Judge.Enabled)
		return nil
	},
}

func init() {
	configGenCmd.Flags().Bool("force", false, "Overwrite existing config file")
	configCmd.AddCommand(configGenCmd)
	configCmd.AddCommand(configValidateCmd)
}
