package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"poupanca/internal/backend"
	"poupanca/internal/cli"
	"poupanca/internal/storage/postgres"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply every pending migration to the store selected by DATA_BACKEND.`,
		RunE:  runMigrate,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version (postgres only)",
		RunE:  runMigrateStatus,
	})
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := cli.LoadConfig(nil)
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg)
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}

	cmd.Printf("Running %s migrations...\n", bc.Type)
	if err := backend.NewFactory(logger).Migrate(cmd.Context(), bc); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := cli.LoadConfig(nil)
	if err != nil {
		return err
	}
	if backend.BackendType(cfg.DataBackend) != backend.PostgresBackend {
		return fmt.Errorf("migrate status needs DATA_BACKEND=postgres, got %q", cfg.DataBackend)
	}

	m, err := postgres.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Schema version %d (dirty: %t)\n", v, dirty)
	return nil
}
