package main

import (
	"context"
	"os"

	"trunk-connector/internal/app"
	"trunk-connector/internal/audit"
	"trunk-connector/internal/connector"

	"github.com/spf13/cobra"
)

const carrierTokenEnv = "CONNECTOR_CARRIER_AUTH_TOKEN"

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Provision or repair routing for a phone number",
	Long: `Provision or repair routing for a phone number.

Re-running connect with the same arguments converges to the same state. The carrier
auth token is read from ` + carrierTokenEnv + ` unless --carrier-token is given.

The result is printed as JSON, also when the run fails part way.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := connector.ConnectParams{
			PhoneNumber:       flagString(cmd, "phone"),
			AccountID:         flagString(cmd, "account"),
			CarrierAccountSID: flagString(cmd, "carrier-sid"),
			CarrierAuthToken:  flagString(cmd, "carrier-token"),
		}
		if p.CarrierAuthToken == "" {
			p.CarrierAuthToken = os.Getenv(carrierTokenEnv)
		}

		return withApp(cmd, func(a *app.App) error {
			res, err := a.Coordinator.Connect(cliContext(cmd), p)
			if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
			return err
		})
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Record a disconnect request (no resources are removed)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := connector.DisconnectParams{
			PhoneNumber: flagString(cmd, "phone"),
			AccountID:   flagString(cmd, "account"),
		}
		return withApp(cmd, func(a *app.App) error {
			res, err := a.Coordinator.Disconnect(cliContext(cmd), p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <phone-number>",
	Short: "Show the account and trunks a phone number routes to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			route, err := a.Coordinator.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), route)
		})
	},
}

func init() {
	rootCmd.AddCommand(connectCmd, disconnectCmd, lookupCmd)

	for _, c := range []*cobra.Command{connectCmd, disconnectCmd} {
		c.Flags().String("phone", "", "Phone number in E.164 format")
		c.Flags().String("account", "", "Account id that owns the number")
		_ = c.MarkFlagRequired("phone")
		_ = c.MarkFlagRequired("account")
	}
	connectCmd.Flags().String("carrier-sid", "", "Carrier account SID")
	connectCmd.Flags().String("carrier-token", "", "Carrier auth token (prefer "+carrierTokenEnv+")")
	_ = connectCmd.MarkFlagRequired("carrier-sid")
}

func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Open(cmd.Context(), cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// cliContext marks audit records written by the CLI.
func cliContext(cmd *cobra.Command) context.Context {
	return audit.WithActor(cmd.Context(), audit.Actor{ID: "connectorctl", Role: "operator"})
}

func flagString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
