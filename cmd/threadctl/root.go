package main

import (
	"os"
	"time"

	"github.com/kiranshivaraju/threadlens/internal/dashboard"
	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	apiURL  string
	apiKey  string
	timeout time.Duration

	// newClient is swapped in tests.
	newClient func(o *options) dashboard.Client
}

func defaultClient(o *options) dashboard.Client {
	return dashboard.NewHTTPClient(o.apiURL, o.apiKey, o.timeout)
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&options{newClient: defaultClient})
}

func newRootCmdWith(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "threadctl",
		Short:         "ThreadLens operator CLI",
		Long:          "threadctl reads thread state and monthly sentiment from a ThreadLens server and manages API keys.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", envOr("THREADLENS_API_URL", "http://localhost:8080"), "ThreadLens server base URL")
	rootCmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("THREADLENS_API_KEY"), "API key with read scope")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-request timeout")

	rootCmd.AddCommand(newThreadsCmd(opts))
	rootCmd.AddCommand(newAggregatesCmd(opts))
	rootCmd.AddCommand(newDashboardCmd(opts))
	rootCmd.AddCommand(newCreateKeyCmd())
	rootCmd.AddCommand(newListKeysCmd())
	rootCmd.AddCommand(newRevokeKeyCmd())

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
