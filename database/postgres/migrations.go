package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/burndrop"
)

type TableMigration struct {
	TableName string
	Up        func(ctx context.Context, pool *pgxpool.Pool) error
	Down      func(ctx context.Context, pool *pgxpool.Pool) error
}

func getTableMigrations(tables burndrop.Tables) []TableMigration {
	return []TableMigration{
		{
			TableName: tables.Shares,
			Up:        createSharesTable(tables.Shares),
			Down:      dropTable(tables.Shares),
		},
	}
}

// Migrate creates the tables and indexes if they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool, tables burndrop.Tables) error {
	if err := tables.Validate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	for _, migration := range getTableMigrations(tables) {
		if err := migration.Up(ctx, pool); err != nil {
			return fmt.Errorf("migrate up %s: %w", migration.TableName, err)
		}
	}

	return nil
}

func DropTables(ctx context.Context, pool *pgxpool.Pool, tables burndrop.Tables) error {
	migrations := getTableMigrations(tables)

	for i := len(migrations) - 1; i >= 0; i-- {
		migration := migrations[i]
		if err := migration.Down(ctx, pool); err != nil {
			return fmt.Errorf("migrate down %s: %w", migration.TableName, err)
		}
	}

	return nil
}

func createSharesTable(tableName string) func(context.Context, *pgxpool.Pool) error {
	return func(ctx context.Context, pool *pgxpool.Pool) error {
		quotedTable := pgx.Identifier{tableName}.Sanitize()
		indexExpiry := pgx.Identifier{fmt.Sprintf("idx_%s_expiry", tableName)}.Sanitize()
		indexPendingCleanup := pgx.Identifier{fmt.Sprintf("idx_%s_pending_cleanup", tableName)}.Sanitize()
		indexCleanedUp := pgx.Identifier{fmt.Sprintf("idx_%s_cleaned_up", tableName)}.Sanitize()

		sql := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				blob_path TEXT NOT NULL UNIQUE,
				original_name TEXT NOT NULL,
				size_bytes BIGINT NOT NULL,
				content_type TEXT NOT NULL,
				password_hash TEXT,
				created_at TIMESTAMPTZ NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL,
				max_downloads INTEGER,
				current_downloads INTEGER NOT NULL DEFAULT 0,
				last_accessed_at TIMESTAMPTZ,
				deleted_at TIMESTAMPTZ,
				cleaned_up_at TIMESTAMPTZ,
				CHECK (expires_at > created_at),
				CHECK (max_downloads IS NULL OR max_downloads > 0),
				CHECK (current_downloads >= 0),
				CHECK (max_downloads IS NULL OR current_downloads <= max_downloads)
			);

			CREATE INDEX IF NOT EXISTS %s
			ON %s (expires_at, created_at, id)
			WHERE (deleted_at IS NULL);

			CREATE INDEX IF NOT EXISTS %s
			ON %s (created_at, id)
			WHERE (deleted_at IS NOT NULL AND cleaned_up_at IS NULL);

			CREATE INDEX IF NOT EXISTS %s
			ON %s (cleaned_up_at)
			WHERE (cleaned_up_at IS NOT NULL);
		`,
			quotedTable,
			indexExpiry, quotedTable,
			indexPendingCleanup, quotedTable,
			indexCleanedUp, quotedTable,
		)

		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("create shares table: %w", err)
		}
		return nil
	}
}

func dropTable(tableName string) func(context.Context, *pgxpool.Pool) error {
	return func(ctx context.Context, pool *pgxpool.Pool) error {
		sql := fmt.Sprintf("DROP TABLE IF EXISTS %s", pgx.Identifier{tableName}.Sanitize())

		_, err := pool.Exec(ctx, sql)
		return err
	}
}
