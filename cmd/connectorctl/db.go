package main

import (
	"fmt"
	"strconv"

	"trunk-connector/internal/store"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the database schema",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *store.Migrator) error {
			if err := m.Up(); err != nil {
				return err
			}
			return printVersion(cmd, m)
		})
	},
}

var dbDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default: 1)",
	Long: `Roll back the given number of migrations.

Example:
  connectorctl db down      # Roll back 1 migration
  connectorctl db down 2    # Roll back 2 migrations`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[0])
			}
			steps = n
		}
		return withMigrator(func(m *store.Migrator) error {
			if err := m.Down(steps); err != nil {
				return err
			}
			return printVersion(cmd, m)
		})
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the applied migration version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *store.Migrator) error {
			return printVersion(cmd, m)
		})
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd, dbDownCmd, dbStatusCmd)
}

func withMigrator(fn func(m *store.Migrator) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	m, err := store.NewMigrator(cfg.PostgresURL())
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return fn(m)
}

func printVersion(cmd *cobra.Command, m *store.Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if v == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Current version: %d\n", v)
	if dirty {
		fmt.Fprintln(cmd.OutOrStdout(), "Warning: schema is dirty; fix it and force the version before migrating again")
	}
	return nil
}
