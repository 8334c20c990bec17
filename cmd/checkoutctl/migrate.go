package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psicolfis/checkout-api/internal/platform/config"
	ppostgres "github.com/psicolfis/checkout-api/internal/platform/postgres"
	pgrepo "github.com/psicolfis/checkout-api/internal/repositories/postgres"
)

func migrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the transactions table in PostgreSQL",
		Long: `Apply the transactions schema to the database named by API_POSTGRES_DSN.

The statement is idempotent and can run before every deploy. Other storage
drivers keep no schema and the command refuses to run for them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			storage := s.cfg.Storage
			if storage.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate: storage driver is %q, want %q", storage.Driver, config.DriverPostgres)
			}
			pool, err := ppostgres.Connect(ctx, ppostgres.Settings{
				DSN:      storage.Postgres.DSN,
				MaxConns: int32(storage.Postgres.MaxConns),
			})
			if err != nil {
				return err
			}
			repo, err := pgrepo.NewTransactionRepository(pool)
			if err != nil {
				pool.Close()
				return err
			}
			defer repo.Close()

			if err := repo.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "transactions schema is up to date")
			return nil
		},
	}
}
