package backend

import (
	"context"
	"fmt"

	"poupanca/internal/log"
	"poupanca/internal/storage/memory"
	"poupanca/internal/storage/postgres"
	"poupanca/internal/storage/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentStorage),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		store, err := sqlite.New(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return &Result{Store: store, Cleanup: store.Close}, nil

	case PostgresBackend:
		store, err := postgres.Open(ctx, config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized Postgres backend")
		return &Result{Store: store, Cleanup: store.Close}, nil

	case MemoryBackend:
		store := memory.New()
		f.logger.WarnContext(ctx, "Initialized memory backend, data is lost on restart")
		return &Result{Store: store, Cleanup: store.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// Migrate implements Factory.Migrate
func (f *DefaultFactory) Migrate(ctx context.Context, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	switch config.Type {
	case SQLiteBackend:
		if err := sqlite.RunMigrations(config.SQLiteDBPath); err != nil {
			return err
		}
	case PostgresBackend:
		if err := postgres.RunMigrations(config.DatabaseURL); err != nil {
			return err
		}
	case MemoryBackend:
		f.logger.InfoContext(ctx, "Memory backend has no schema to migrate")
		return nil
	}
	f.logger.InfoContext(ctx, "Migrations applied", "backend", config.Type.String())
	return nil
}
