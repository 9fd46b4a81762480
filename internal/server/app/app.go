// Package app assembles the file service from configuration. It is shared
// by the HTTP server and the operator CLI so both see the same stores.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"tempshare/internal/server/config"
	"tempshare/internal/server/database"
	"tempshare/internal/server/metadata"
	"tempshare/internal/server/service"
	"tempshare/internal/server/storage"
)

// App holds the wired service and the resources behind it.
type App struct {
	Service *service.FileService

	// DB is nil unless metadata is kept in PostgreSQL.
	DB *database.DB
}

// Open builds the content store, the metadata store and the file service
// described by cfg.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := service.CheckEntropy(); err != nil {
		return nil, err
	}

	store, err := openContentStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureReady(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.StorageBackend, err)
	}
	slog.Info("content storage initialized", "backend", cfg.StorageBackend)

	a := &App{}
	var meta metadata.Store

	switch cfg.MetadataBackend {
	case config.BackendFile:
		meta = metadata.NewFileStore(cfg.MetadataPath)
		slog.Info("metadata store initialized", "backend", cfg.MetadataBackend, "path", cfg.MetadataPath)
	case config.BackendPostgres:
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		slog.Info("database migrations complete")
		a.DB = db
		meta = database.NewRepository(db)
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", cfg.MetadataBackend)
	}

	a.Service = service.NewFileService(meta, store, cfg)
	return a, nil
}

func openContentStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendFilesystem:
		return storage.NewFileSystemStore(cfg.StoragePath), nil
	case config.BackendMinio:
		return storage.NewMinioStore(storage.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
