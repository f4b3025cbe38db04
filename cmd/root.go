package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phishguard/phish-triage/pkg/config"
	"github.com/phishguard/phish-triage/pkg/logging"

	"github.com/sirupsen/logrus"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "phish-triage",
	Short: "Phish Triage - deterministic email phishing detection",
	Long: `Phish Triage analyzes raw emails (.eml, JSON payloads or plain text)
through a deterministic signal pipeline: header authentication, URL and
domain intel, NLP cues, attachment scanning and optional sandboxed page
fetches. An external judge can refine the verdict; the deterministic
result always stands as the fallback.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Phish Triage - email phishing detection")
		fmt.Println("Use 'phish-triage --help' for usage information")
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file path")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(fetchWorkerCmd)
}

// loadRuntime loads configuration and builds the logger shared by commands
func loadRuntime() (*config.Config, *logrus.Logger, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	return cfg, logging.Setup(cfg.Logging), nil
}
