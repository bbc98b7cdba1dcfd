package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/sagarc03/burndrop"
	"github.com/sagarc03/burndrop/config"
	"github.com/sagarc03/burndrop/database"
	"github.com/sagarc03/burndrop/filesystem"
	"github.com/sagarc03/burndrop/memory"
	"github.com/sagarc03/burndrop/objectstore"
)

// backend bundles the opened stores. files is set only for filesystem storage.
type backend struct {
	db      database.Database
	storage burndrop.BlobStorage
	files   *filesystem.Store
	closers []func() error
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Warn("close backend", "err", err)
		}
	}
}

// openBackend connects the metadata store and the blob storage. With migrate
// set the schema is created when database.auto_migrate allows it.
func openBackend(ctx context.Context, cfg *config.Config, migrate bool) (*backend, error) {
	b := &backend{}

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	b.db = db
	b.closers = append(b.closers, db.Close)

	if err = db.Ping(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if migrate && cfg.Database.AutoMigrate {
		if err = db.Migrate(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		slog.Info("database migration complete")
	}

	if err = db.Validate(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("validate database schema: %w", err)
	}
	slog.Info("connected to database", "type", cfg.Database.Type)

	if err = b.openStorage(ctx, cfg.Storage); err != nil {
		b.Close()
		return nil, err
	}
	slog.Info("opened blob storage", "type", cfg.Storage.Type)

	return b, nil
}

func (b *backend) openStorage(ctx context.Context, cfg config.StorageConfig) error {
	switch cfg.Type {
	case "filesystem":
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return fmt.Errorf("create storage directory: %w", err)
		}
		root, err := os.OpenRoot(cfg.Path)
		if err != nil {
			return fmt.Errorf("open storage root: %w", err)
		}
		b.closers = append(b.closers, root.Close)
		b.files = filesystem.NewFileStorage(root)
		b.storage = b.files
	case "s3":
		store, err := objectstore.New(ctx, cfg.S3)
		if err != nil {
			return fmt.Errorf("open object storage: %w", err)
		}
		b.storage = store
	case "memory":
		b.storage = memory.NewBlobStore()
	default:
		return errors.New("unsupported storage type: " + cfg.Type)
	}
	return nil
}

func newService(cfg *config.Config, b *backend) (*burndrop.Service, error) {
	passwords, err := burndrop.NewPasswordGuard(cfg.Service.BcryptCost)
	if err != nil {
		return nil, err
	}

	svcCfg := serviceConfig(cfg)
	svcCfg.Passwords = passwords
	return burndrop.NewService(b.db.GetRepo(), b.storage, svcCfg)
}

// serviceConfig translates the service section. The config file owns the
// defaults, so a configured store_retries of 0 means no retries.
func serviceConfig(cfg *config.Config) burndrop.ServiceConfig {
	retries := cfg.Service.StoreRetries
	if retries == 0 {
		retries = burndrop.NoStoreRetries
	}

	return burndrop.ServiceConfig{
		DefaultTTL:        cfg.Service.DefaultTTL,
		MaxTTL:            cfg.Service.MaxTTL,
		MaxDownloadsLimit: cfg.Service.MaxDownloadsLimit,
		MaxUploadBytes:    cfg.Server.MaxUploadSize,
		IDAttempts:        cfg.Service.IDAttempts,
		StoreRetries:      retries,
		RetryInterval:     cfg.Service.RetryInitialInterval,
		CleanupTimeout:    cfg.Service.CleanupTimeout,
		ReclaimOnAccess:   cfg.Service.ReclaimOnAccess,
	}
}

func newSweeper(cfg *config.Config, b *backend) *burndrop.Sweeper {
	return burndrop.NewSweeper(b.db.GetRepo(), b.storage, burndrop.SweeperConfig{
		Interval:           cfg.Sweeper.Interval,
		BatchSize:          cfg.Sweeper.BatchSize,
		TombstoneRetention: cfg.Sweeper.TombstoneRetention,
	})
}
