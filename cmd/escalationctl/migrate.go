package main

import (
	"fmt"

	"github.com/kursadbilgin/escalation-engine/internal/config"
	"github.com/kursadbilgin/escalation-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/escalation-engine/internal/infra/postgresql/migrations"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var rollback bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Apply every pending schema migration to DATABASE_DSN.

With --rollback the most recently applied migration is reverted instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			db, err := postgresql.NewPostgres(cmd.Context(), cfg.DatabaseDSN, postgresql.PoolOptions{MaxOpenConns: 2, MaxIdleConns: 1})
			if err != nil {
				return fmt.Errorf("postgres initialization failed: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if rollback {
				if err := migrations.RollbackLast(db); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back last migration")
				return nil
			}

			if err := migrations.Migrate(db); err != nil {
				return fmt.Errorf("database migrations failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&rollback, "rollback", false, "revert the most recently applied migration")
	return cmd
}
