package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/example/shared-calendar/internal/config"
	"github.com/example/shared-calendar/internal/persistence/sqlite"
	"github.com/example/shared-calendar/internal/persistence/sqlite/migration"
)

func newMigrateCommand() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Driver != config.DriverSQLite {
				return fmt.Errorf("migrate requires the %s driver, configured driver is %s", config.DriverSQLite, cfg.Driver)
			}

			ctx := cmd.Context()
			store, err := sqlite.Open(ctx, sqlite.Config{DSN: cfg.SQLiteDSN}, sqlite.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			if !statusOnly {
				if err := store.Migrate(ctx); err != nil {
					return err
				}
			}
			status, err := store.MigrationStatus(ctx)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "report the schema version without applying migrations")
	return cmd
}

func printStatus(w io.Writer, status migration.Status) {
	fmt.Fprintf(w, "schema version %d, %d applied, %d pending\n", status.CurrentVersion, len(status.Applied), len(status.Pending))
	for _, m := range status.Pending {
		fmt.Fprintf(w, "pending %03d %s\n", m.Version, m.Description)
	}
}
