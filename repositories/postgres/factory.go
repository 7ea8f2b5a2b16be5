package postgres

import (
	"context"

	"github.com/upb/tasker-auth/config"
	"github.com/upb/tasker-auth/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all Postgres repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory opens the pool and, when configured, applies migrations
func NewRepositoryFactory(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &RepositoryFactory{db: db, logger: logger}, nil
}

// NewRepositoryFactoryFromDB builds a factory over an existing pool
func NewRepositoryFactoryFromDB(db *DB, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{db: db, logger: logger}
}

// Users returns the identity repository
func (f *RepositoryFactory) Users() repositories.UserRepository {
	return NewUserRepository(f.db, f.logger)
}

// Revocations returns the table-backed revocation store
func (f *RepositoryFactory) Revocations() *RevocationRepository {
	return NewRevocationRepository(f.db, f.logger)
}

// AuthEvents returns the audit trail repository
func (f *RepositoryFactory) AuthEvents() repositories.AuthEventRepository {
	return NewAuthEventRepository(f.db, f.logger)
}

// GetTransactionManager returns a transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}

// NewRepositories builds every repository over the shared pool
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Users:       f.Users(),
		Revocations: f.Revocations(),
		AuthEvents:  f.AuthEvents(),
	}
}
