// Command connectorctl provisions carrier-to-media routing for a phone number and
// manages the connector's database schema.
//
//	# Apply migrations
//	connectorctl db migrate
//
//	# Connect a number the carrier account already owns
//	export CONNECTOR_CARRIER_AUTH_TOKEN=...
//	connectorctl connect --account acct-1 --phone +15551234567 --carrier-sid AC...
//
//	# Resolve a provisioned number
//	connectorctl lookup +15551234567
//
// Configuration is read from the same environment variables as the API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"trunk-connector/internal/config"
	"trunk-connector/pkg/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "connectorctl",
	Short:         "Provision carrier trunks and media routing for phone numbers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the environment and builds a stderr logger; stdout is kept for results.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logger.NewWithWriter(cfg.App.Env, os.Stderr)
	slog.SetDefault(log)
	return cfg, log, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
