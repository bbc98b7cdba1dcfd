// Package database opens the share metadata backend named in configuration.
//
// # Supported Backends
//
//   - postgres: pgx connection pool, for multi-instance deployments
//   - sqlite: modernc.org/sqlite, for single-node deployments
//   - bolt: a single bbolt file, for single-process deployments
//   - memory: process-local map, for tests
//
// # Usage
//
//	db, err := database.Connect(ctx, database.Config{
//	    Type:   "sqlite",
//	    DSN:    "burndrop.db",
//	    Tables: burndrop.Tables{Shares: "burndrop_shares"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//	if err := db.Validate(ctx); err != nil {
//	    return err
//	}
//	repo := db.GetRepo()
package database
