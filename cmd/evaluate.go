package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/phishguard/phish-triage/pkg/evaluate"
)

var evaluateSuspicious string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <samples-file>",
	Short: "Compute classification metrics over labeled verdicts",
	Long: `Evaluate reads (predicted, truth) verdict pairs from a JSON array or
JSON-lines file and prints tp/tn/fp/fn, accuracy, precision, recall and f1.
The --suspicious flag decides whether the intermediate suspicious verdict
counts as a positive.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mapping := evaluate.SuspiciousAsPositive
		switch evaluateSuspicious {
		case "positive":
		case "negative":
			mapping = evaluate.SuspiciousAsNegative
		default:
			return fmt.Errorf("--suspicious must be positive or negative, got %q", evaluateSuspicious)
		}

		samples, err := evaluate.LoadSamples(args[0])
		if err != nil {
			return err
		}

		metrics := evaluate.Evaluate(samples, mapping)
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(metrics)
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateSuspicious, "suspicious", "positive", "Fold suspicious verdicts as positive or negative")
}
