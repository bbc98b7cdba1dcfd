package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagarc03/burndrop"
	"github.com/sagarc03/burndrop/database/boltdb"
	"github.com/sagarc03/burndrop/database/postgres"
	"github.com/sagarc03/burndrop/database/sqlite"
	"github.com/sagarc03/burndrop/memory"
)

// Config holds the configuration for connecting to a metadata backend.
type Config struct {
	// Type is one of "sqlite", "postgres", "bolt" or "memory".
	Type string `mapstructure:"type" validate:"required,oneof=sqlite postgres bolt memory"`
	// DSN is the connection string, or the file path for bolt.
	DSN string `mapstructure:"dsn" validate:"required_unless=Type memory"`
	// Tables names the SQL tables. Ignored by bolt and memory.
	Tables burndrop.Tables `mapstructure:"tables"`
	// Timeout bounds acquiring the bolt file lock.
	Timeout time.Duration `mapstructure:"timeout"`
	// AutoMigrate creates the schema on startup before it is validated.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// Database is an open metadata backend.
type Database interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Validate(ctx context.Context) error
	GetRepo() burndrop.ShareRepo
	Close() error
}

// Connect opens the configured backend. Migrate is not run; callers decide
// whether to migrate before Validate.
func Connect(ctx context.Context, cfg Config) (Database, error) {
	switch cfg.Type {
	case "sqlite":
		return connectSQLite(ctx, cfg)
	case "postgres":
		return connectPostgres(ctx, cfg)
	case "bolt":
		return connectBolt(cfg)
	case "memory":
		return &memoryDatabase{repo: memory.NewRepo()}, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %q", cfg.Type)
	}
}

type sqliteDatabase struct {
	db     *sql.DB
	tables burndrop.Tables
	repo   *sqlite.Repo
}

func connectSQLite(ctx context.Context, cfg Config) (*sqliteDatabase, error) {
	if err := cfg.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	db, err := sqlite.Open(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}

	repo, err := sqlite.NewRepo(db, cfg.Tables)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite repo: %w", err)
	}

	return &sqliteDatabase{db: db, tables: cfg.Tables, repo: repo}, nil
}

func (d *sqliteDatabase) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *sqliteDatabase) Migrate(ctx context.Context) error { return sqlite.Migrate(ctx, d.db, d.tables) }
func (d *sqliteDatabase) Validate(ctx context.Context) error { return sqlite.ValidateSchema(ctx, d.db, d.tables) }
func (d *sqliteDatabase) GetRepo() burndrop.ShareRepo { return d.repo }
func (d *sqliteDatabase) Close() error { return d.db.Close() }

type postgresDatabase struct {
	pool   *pgxpool.Pool
	tables burndrop.Tables
	repo   *postgres.Repo
}

func connectPostgres(ctx context.Context, cfg Config) (*postgresDatabase, error) {
	if err := cfg.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	repo, err := postgres.NewRepo(pool, cfg.Tables)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres repo: %w", err)
	}

	return &postgresDatabase{pool: pool, tables: cfg.Tables, repo: repo}, nil
}

func (d *postgresDatabase) Ping(ctx context.Context) error { return d.pool.Ping(ctx) }
func (d *postgresDatabase) Migrate(ctx context.Context) error {
	return postgres.Migrate(ctx, d.pool, d.tables)
}
func (d *postgresDatabase) Validate(ctx context.Context) error {
	return postgres.ValidateSchema(ctx, d.pool, d.tables)
}
func (d *postgresDatabase) GetRepo() burndrop.ShareRepo { return d.repo }
func (d *postgresDatabase) Close() error {
	d.pool.Close()
	return nil
}

// boltDatabase has no schema; its buckets are created on open.
type boltDatabase struct {
	repo *boltdb.Repo
}

func connectBolt(cfg Config) (*boltDatabase, error) {
	repo, err := boltdb.Open(boltdb.Config{Path: cfg.DSN, Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("connect bolt: %w", err)
	}
	return &boltDatabase{repo: repo}, nil
}

func (d *boltDatabase) Ping(ctx context.Context) error { return ctx.Err() }
func (d *boltDatabase) Migrate(ctx context.Context) error { return nil }
func (d *boltDatabase) Validate(ctx context.Context) error { return nil }
func (d *boltDatabase) GetRepo() burndrop.ShareRepo { return d.repo }
func (d *boltDatabase) Close() error { return d.repo.Close() }

// memoryDatabase loses everything on Close. Used by tests and demos.
type memoryDatabase struct {
	repo *memory.Repo
}

func (d *memoryDatabase) Ping(ctx context.Context) error { return ctx.Err() }
func (d *memoryDatabase) Migrate(ctx context.Context) error { return nil }
func (d *memoryDatabase) Validate(ctx context.Context) error { return nil }
func (d *memoryDatabase) GetRepo() burndrop.ShareRepo { return d.repo }
func (d *memoryDatabase) Close() error { return nil }
