package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tide-labs/tide/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost     string
	servePort     int
	serveLogLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tide daemon",
	Long: `Start the tide daemon: task registry, executors for every configured
chain, and the HTTP API. The keystore passphrase is read from the
environment variable named in [keystore] passphrase_env.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}

	logger, err := daemon.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}

	ctx := context.Background()
	d, err := daemon.NewWithConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return d.Serve(ctx)
}
