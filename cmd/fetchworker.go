package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/phishguard/phish-triage/pkg/fetcher"
	"github.com/phishguard/phish-triage/pkg/logging"
)

var (
	workerURL          string
	workerTimeout      int
	workerMaxRedirects int
	workerMaxBytes     int64
	workerUserAgent    string
	workerAllowPrivate bool
)

// fetchWorkerCmd is the sandboxed fetch subprocess entrypoint. The parent
// process invokes it inside firejail or docker; it performs one internal
// fetch and prints exactly one JSON result on stdout.
var fetchWorkerCmd = &cobra.Command{
	Use:    "fetch-worker",
	Hidden: true,
	Short:  "Internal sandboxed fetch worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		if workerURL == "" {
			return fmt.Errorf("--url is required")
		}

		policy := fetcher.DefaultPolicy()
		policy.Enabled = true
		policy.SandboxBackend = "internal"
		if workerTimeout > 0 {
			policy.Timeout = time.Duration(workerTimeout) * time.Second
		}
		if workerMaxRedirects > 0 {
			policy.MaxRedirects = workerMaxRedirects
		}
		if workerMaxBytes > 0 {
			policy.MaxBytes = workerMaxBytes
		}
		if workerUserAgent != "" {
			policy.UserAgent = workerUserAgent
		}
		policy.AllowPrivateNetwork = workerAllowPrivate

		f := fetcher.New(policy, logging.Discard())
		result := f.FetchInternal(cmd.Context(), workerURL)

		encoder := json.NewEncoder(os.Stdout)
		if err := encoder.Encode(result); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		return nil
	},
}

func init() {
	fetchWorkerCmd.Flags().StringVar(&workerURL, "url", "", "URL to fetch")
	fetchWorkerCmd.Flags().IntVar(&workerTimeout, "timeout", 0, "Fetch timeout in seconds")
	fetchWorkerCmd.Flags().IntVar(&workerMaxRedirects, "max-redirects", 0, "Redirect limit")
	fetchWorkerCmd.Flags().Int64Var(&workerMaxBytes, "max-bytes", 0, "Response byte cap")
	fetchWorkerCmd.Flags().StringVar(&workerUserAgent, "user-agent", "", "User agent header")
	fetchWorkerCmd.Flags().BoolVar(&workerAllowPrivate, "allow-private-network", false, "Allow private network targets")
}
