// migrate applies or rolls back the embedded SQL migrations against DATABASE_URL.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tenant-iam/backend/internal/config"
	"tenant-iam/backend/internal/db/migrate"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the tenant IAM database schema",
		SilenceUsage: true,
	}
	cmd.AddCommand(directionCmd("up", "Apply all pending migrations"))
	cmd.AddCommand(directionCmd("down", "Roll back every applied migration"))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := databaseURL()
			if err != nil {
				return err
			}
			v, dirty, err := migrate.Version(dsn)
			if err != nil {
				return err
			}
			cmd.Printf("version=%d dirty=%t\n", v, dirty)
			return nil
		},
	})
	return cmd
}

func directionCmd(direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   direction,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := databaseURL()
			if err != nil {
				return err
			}
			if err := migrate.Run(dsn, direction); err != nil {
				return err
			}
			cmd.Printf("migrate %s: done\n", direction)
			return nil
		},
	}
}

func databaseURL() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is not set; export it or add it to .env")
	}
	return cfg.DatabaseURL, nil
}
