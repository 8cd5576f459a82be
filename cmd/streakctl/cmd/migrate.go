package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/healthtrack/healthtrack/internal/config"
	"github.com/healthtrack/healthtrack/internal/db"
	"github.com/healthtrack/healthtrack/internal/logger"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	cmd.AddCommand(
		migrateStep("up", "Apply all pending migrations", db.RunMigrations),
		migrateStep("down", "Roll back the most recent migration", db.MigrateDown),
		migrateStatusCmd(),
	)
	return cmd
}

func migrateStep(use, short string, step func(ctx context.Context, conn *sql.DB, driver string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, conn, err := open(ctx)
			if err != nil {
				return err
			}
			defer db.Close(conn)

			if err := step(ctx, conn.DB, cfg.DBDriver); err != nil {
				return fmt.Errorf("migrate %s: %w", use, err)
			}
			return printVersion(cmd, ctx, conn, cfg.DBDriver)
		},
	}
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, conn, err := open(ctx)
			if err != nil {
				return err
			}
			defer db.Close(conn)

			return printVersion(cmd, ctx, conn, cfg.DBDriver)
		},
	}
}

func printVersion(cmd *cobra.Command, ctx context.Context, conn *sqlx.DB, driver string) error {
	version, err := db.Version(ctx, conn.DB, driver)
	if err != nil {
		return err
	}
	cmd.Printf("schema version %d\n", version)
	return nil
}

// open loads configuration and connects without migrating.
func open(ctx context.Context) (*config.Config, *sqlx.DB, error) {
	cfg := config.Load()
	logger.Init(logger.Options{Development: cfg.IsDevelopment()})

	conn, err := db.Init(ctx, cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, conn, nil
}
