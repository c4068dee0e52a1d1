package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "journal:pool"

// applicationName tags journal connections in pg_stat_activity.
const applicationName = "hostrpc-journal"

// NewPool opens the journal's connection pool. An application_name already present in the
// URL is kept.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	// The journal writes one row per call; a small pool is enough.
	config.MaxConns = 4
	config.MinConns = 1
	if _, ok := config.ConnConfig.RuntimeParams["application_name"]; !ok {
		config.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

// RunMigrations applies migration files in order, each in its own transaction, and returns
// how many were applied. On failure nothing of the failing file is kept.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationFiles []string) (int, error) {
	if len(migrationFiles) == 0 {
		slog.Info(fmt.Sprintf("%s - No migrations to run", logPrefix))
		return 0, nil
	}
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrationFiles)))

	for i, sql := range migrationFiles {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, sql)
			return err
		})
		if err != nil {
			return i, fmt.Errorf("%s - migration %d of %d failed: %w", logPrefix, i+1, len(migrationFiles), err)
		}
		slog.Debug(fmt.Sprintf("%s - Applied migration %d of %d", logPrefix, i+1, len(migrationFiles)))
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete (%d applied)", logPrefix, len(migrationFiles)))
	return len(migrationFiles), nil
}

// MigrationStatus reports whether the journal schema exists and how many migration files
// are available in migrationPath.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) (bool, int, error) {
	const statusLogPrefix = "journal:MigrationStatus"

	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'call_journal')`).Scan(&exists)
	if err != nil {
		return false, 0, fmt.Errorf("%s - failed to check schema: %w", statusLogPrefix, err)
	}

	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return exists, 0, fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}
	return exists, len(files), nil
}
