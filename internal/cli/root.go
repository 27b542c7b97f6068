// Package cli implements the tide command-line interface using Cobra.
// `tide serve` runs the daemon; every other command talks to it over the
// HTTP API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var apiAddr string

var rootCmd = &cobra.Command{
	Use:   "tide",
	Short: "Run volume trading tasks over wallet groups",
	Long: `tide runs trading tasks: each task drives a pool of workers that lease
wallets from one wallet group and swap a token back and forth through an
on-chain aggregator (Jupiter on Solana, 1inch on Base and BSC).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "", "daemon API address (default from config)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
