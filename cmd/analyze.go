package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/phishguard/phish-triage/pkg/audit"
	"github.com/phishguard/phish-triage/pkg/triage"
)

var (
	analyzeStream bool
	analyzePretty bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Analyze one email",
	Long: `Analyze a raw email read from a file or stdin. The input may be a
.eml message, a JSON payload or plain text. Prints the triage result as
JSON; with --stream, stage events are printed as NDJSON before the result.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(args)
		if err != nil {
			return err
		}

		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}

		engine, err := triage.NewEngine(cfg, nil, logger)
		if err != nil {
			return fmt.Errorf("building engine: %w", err)
		}

		trail, err := audit.NewTrail(cfg.Audit, logger)
		if err != nil {
			logger.WithError(err).Warn("audit trail unavailable")
		}
		defer trail.Close()

		ctx := cmd.Context()
		encoder := json.NewEncoder(os.Stdout)
		if analyzePretty {
			encoder.SetIndent("", "  ")
		}

		var emit triage.Emit
		if analyzeStream {
			emit = func(event triage.Event) {
				// Events are NDJSON regardless of --pretty
				line, _ := json.Marshal(event)
				fmt.Println(string(line))
			}
		}

		result, err := engine.AnalyzeStream(ctx, raw, emit)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}

		if trail != nil {
			if err := trail.Record(ctx, "result", result.Input.MessageID, result); err != nil {
				logger.WithError(err).Warn("audit record failed")
			}
		}

		if !analyzeStream {
			return encoder.Encode(result)
		}
		return nil
	},
}

func readInput(args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeStream, "stream", false, "Emit stage events as NDJSON")
	analyzeCmd.Flags().BoolVar(&analyzePretty, "pretty", false, "Indent the result JSON")
}
