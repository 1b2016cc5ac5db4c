package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"healthproxy/config"
	"healthproxy/internal/storage"
)

// Result holds the usage recorder, its reader and the storage they share.
// The caller must call Close during shutdown.
type Result struct {
	Logger  Recorder
	Reader  UsageReader
	Storage storage.Storage
}

// Close flushes the logger and then closes the storage. Safe to call
// multiple times.
func (r *Result) Close() error {
	var errs []error
	if r.Logger != nil {
		if err := r.Logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("logger close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
		r.Storage = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New opens the configured storage and builds the usage logger and reader.
// When tracking is disabled it returns a NoopLogger and no reader.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	if !cfg.Usage.Enabled {
		return &Result{Logger: NoopLogger{}}, nil
	}

	store, err := storage.New(ctx, buildStorageConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	result, err := NewWithStorage(ctx, store, buildLoggerConfig(cfg.Usage))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	result.Storage = store
	return result, nil
}

// NewWithStorage builds the logger and reader on an already open storage.
// The returned Result does not own store.
func NewWithStorage(ctx context.Context, store storage.Storage, cfg Config) (*Result, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required when usage tracking is enabled")
	}

	usageStore, reader, err := createBackend(ctx, store, cfg.RetentionDays)
	if err != nil {
		return nil, err
	}

	return &Result{
		Logger: NewLogger(usageStore, cfg),
		Reader: reader,
	}, nil
}

func buildStorageConfig(cfg *config.Config) storage.Config {
	defaults := storage.DefaultConfig()
	storageCfg := storage.Config{
		Type:   cfg.Storage.Type,
		SQLite: storage.SQLiteConfig{Path: cfg.Storage.SQLite.Path},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgreSQL.URL,
			MaxConns: cfg.Storage.PostgreSQL.MaxConns,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.Storage.MongoDB.URL,
			Database: cfg.Storage.MongoDB.Database,
		},
		Redis: storage.RedisConfig{
			URL:       cfg.Storage.Redis.URL,
			KeyPrefix: cfg.Storage.Redis.KeyPrefix,
		},
	}

	if storageCfg.Type == "" {
		storageCfg.Type = defaults.Type
	}
	if storageCfg.SQLite.Path == "" {
		storageCfg.SQLite.Path = defaults.SQLite.Path
	}
	if storageCfg.MongoDB.Database == "" {
		storageCfg.MongoDB.Database = defaults.MongoDB.Database
	}
	return storageCfg
}

func createBackend(ctx context.Context, store storage.Storage, retentionDays int) (UsageStore, UsageReader, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		w, err := NewSQLiteStore(store.SQLiteDB(), retentionDays)
		if err != nil {
			return nil, nil, err
		}
		r, err := NewSQLiteReader(store.SQLiteDB())
		return w, r, err

	case storage.TypePostgreSQL:
		w, err := NewPostgreSQLStore(ctx, store.PostgreSQLPool(), retentionDays)
		if err != nil {
			return nil, nil, err
		}
		r, err := NewPostgreSQLReader(store.PostgreSQLPool())
		return w, r, err

	case storage.TypeMongoDB:
		w, err := NewMongoDBStore(ctx, store.MongoDatabase(), retentionDays)
		if err != nil {
			return nil, nil, err
		}
		r, err := NewMongoDBReader(store.MongoDatabase())
		return w, r, err

	case storage.TypeRedis:
		prefix := storage.RedisKeyPrefix(store)
		w, err := NewRedisStore(store.RedisClient(), prefix, retentionDays)
		if err != nil {
			return nil, nil, err
		}
		r, err := NewRedisReader(store.RedisClient(), prefix)
		return w, r, err

	default:
		return nil, nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

func buildLoggerConfig(usageCfg config.UsageConfig) Config {
	cfg := Config{
		Enabled:       usageCfg.Enabled,
		BufferSize:    usageCfg.BufferSize,
		FlushInterval: time.Duration(usageCfg.FlushInterval) * time.Second,
		RetentionDays: usageCfg.RetentionDays,
	}

	defaults := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	return cfg
}
