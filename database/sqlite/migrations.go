package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sagarc03/burndrop"
)

// quoteIdentifier safely quotes a SQLite identifier
func quoteIdentifier(name string) string {
	return `"` + name + `"`
}

type TableMigration struct {
	TableName string
	Up        func(ctx context.Context, db *sql.DB) error
	Down      func(ctx context.Context, db *sql.DB) error
}

// getTableMigrations returns all table migrations for the app
func getTableMigrations(tables burndrop.Tables) []TableMigration {
	return []TableMigration{
		{
			TableName: tables.Shares,
			Up:        createSharesTable(tables.Shares),
			Down:      dropTable(tables.Shares),
		},
	}
}

func Migrate(ctx context.Context, db *sql.DB, tables burndrop.Tables) error {
	if err := tables.Validate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	for _, migration := range getTableMigrations(tables) {
		if err := migration.Up(ctx, db); err != nil {
			return fmt.Errorf("migrate up %s: %w", migration.TableName, err)
		}
	}

	return nil
}

func DropTables(ctx context.Context, db *sql.DB, tables burndrop.Tables) error {
	migrations := getTableMigrations(tables)

	for i := len(migrations) - 1; i >= 0; i-- {
		migration := migrations[i]
		if err := migration.Down(ctx, db); err != nil {
			return fmt.Errorf("migrate down %s: %w", migration.TableName, err)
		}
	}

	return nil
}

func createSharesTable(tableName string) func(context.Context, *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		quotedTable := quoteIdentifier(tableName)

		// Timestamps are TEXT in timeLayout, which sorts lexicographically.
		createTableSQL := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT NOT NULL PRIMARY KEY,
				blob_path TEXT NOT NULL UNIQUE,
				original_name TEXT NOT NULL,
				size_bytes INTEGER NOT NULL,
				content_type TEXT NOT NULL,
				password_hash TEXT,
				created_at TEXT NOT NULL,
				expires_at TEXT NOT NULL,
				max_downloads INTEGER,
				current_downloads INTEGER NOT NULL DEFAULT 0,
				last_accessed_at TEXT,
				deleted_at TEXT,
				cleaned_up_at TEXT,
				CHECK (expires_at > created_at),
				CHECK (max_downloads IS NULL OR max_downloads > 0),
				CHECK (current_downloads >= 0),
				CHECK (max_downloads IS NULL OR current_downloads <= max_downloads)
			)
		`, quotedTable)

		if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
			return fmt.Errorf("create table: %w", err)
		}

		indexes := []struct {
			name    string
			columns string
		}{
			{name: "expiry", columns: "deleted_at, expires_at"},
			{name: "pending_cleanup", columns: "deleted_at, cleaned_up_at"},
			{name: "created", columns: "created_at, id"},
		}

		for _, idx := range indexes {
			indexName := quoteIdentifier(fmt.Sprintf("idx_%s_%s", tableName, idx.name))
			indexSQL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`, indexName, quotedTable, idx.columns)

			if _, err := db.ExecContext(ctx, indexSQL); err != nil {
				return fmt.Errorf("create index %s: %w", idx.name, err)
			}
		}

		return nil
	}
}

func dropTable(tableName string) func(context.Context, *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		dropSQL := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdentifier(tableName))

		_, err := db.ExecContext(ctx, dropSQL)
		return err
	}
}
