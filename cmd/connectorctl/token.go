package main

import (
	"time"

	"trunk-connector/internal/auth"
	"trunk-connector/internal/rbac"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an access token for the API",
	Long: `Mint an access token signed with JWT_SECRET, valid for JWT_ACCESS_TTL.

Example:
  connectorctl token --user ops --account acct-1 --role owner
  connectorctl token --user voice-runtime --account ops --role network_operator`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := auth.NewManager(cfg.Auth)
		if err != nil {
			return err
		}
		now := time.Now()
		tok, err := m.IssueAccess(now, flagString(cmd, "user"), flagString(cmd, "account"), flagString(cmd, "role"))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]string{
			"access_token": tok,
			"expires_at":   now.Add(cfg.Auth.AccessTokenTTL).UTC().Format(time.RFC3339),
		})
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("user", "", "User id (sub)")
	tokenCmd.Flags().String("account", "", "Account id")
	tokenCmd.Flags().String("role", rbac.RoleOwner, "Role")
	_ = tokenCmd.MarkFlagRequired("user")
	_ = tokenCmd.MarkFlagRequired("account")
}
