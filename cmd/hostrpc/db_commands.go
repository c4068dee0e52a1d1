package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/morezero/hostrpc/internal/config"
	"github.com/morezero/hostrpc/pkg/journal"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the call journal schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Run database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPool(cmd.Context(), func(c context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				files, err := journal.LoadMigrationFiles(cfg.MigrationPath)
				if err != nil {
					return fmt.Errorf("load migrations: %w", err)
				}
				applied, err := journal.RunMigrations(c, pool, files)
				if err != nil {
					return fmt.Errorf("run migrations: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migrations from %s.\n", applied, cfg.MigrationPath)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "ensure-db",
		Short: "Create the journal database named in DATABASE_URL if it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateForDB(); err != nil {
				return err
			}
			created, err := journal.EnsureDatabase(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			name, _ := journal.DatabaseName(cfg.DatabaseURL)
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Database %q created.\n", name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Database %q is ready.\n", name)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPool(cmd.Context(), func(c context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				applied, files, err := journal.MigrationStatus(c, pool, cfg.MigrationPath)
				if err != nil {
					return err
				}
				if applied {
					fmt.Fprintf(cmd.OutOrStdout(), "Migration status: applied (schema present, %d migration files in %s)\n", files, cfg.MigrationPath)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Migration status: not applied (run 'hostrpc migrate up'). %d migration files in %s\n", files, cfg.MigrationPath)
				}
				return nil
			})
		},
	})
	return cmd
}

func newJournalCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect and prune the call journal",
	}

	var method string
	var limit int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent journaled calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPool(cmd.Context(), func(c context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				entries, err := journal.NewPostgresRecorder(pool).Recent(c, method, limit)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No journaled calls.")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), journalTable(entries))
				return nil
			})
		},
	}
	recent.Flags().StringVar(&method, "method", "", "Only show calls to this method")
	recent.Flags().IntVar(&limit, "limit", 50, "Maximum number of entries")

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete journal entries older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return ctx.withPool(cmd.Context(), func(c context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				n, err := journal.NewPostgresRecorder(pool).Prune(c, time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d journal entries.\n", n)
				return nil
			})
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age cutoff")

	cmd.AddCommand(recent, prune)
	return cmd
}
