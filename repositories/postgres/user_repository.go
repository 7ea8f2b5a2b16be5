package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tasker-auth/models"
	"github.com/upb/tasker-auth/repositories"
	"go.uber.org/zap"
)

const userColumns = `id, name, email, password_hash, is_verified, refresh_token, created_at, updated_at`

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	tx     repositories.Transaction
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := boundExecutor(ctx, r.db, r.tx)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.IsVerified,
		user.RefreshToken,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email %s: %w", user.Email, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()))
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := r.scanOne(ctx, query, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, err)
		}
		return nil, err
	}
	return user, nil
}

// GetByEmail retrieves a user by normalized email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	return r.scanOne(ctx, query, models.NormalizeEmail(email))
}

// SetRefreshToken overwrites the stored refresh token; nil clears it.
// Clearing the token of a missing user is not an error.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id uuid.UUID, token *string) error {
	query := `
		UPDATE users
		SET refresh_token = $2,
		    updated_at = $3
		WHERE id = $1
	`

	executor := boundExecutor(ctx, r.db, r.tx)
	result, err := executor.ExecContext(ctx, query, id, token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update refresh token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 && token != nil {
		return fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("refresh token updated",
		zap.String("id", id.String()),
		zap.Bool("cleared", token == nil))
	return nil
}

// ClearRefreshToken removes token from the user holding it
func (r *UserRepository) ClearRefreshToken(ctx context.Context, token string) error {
	query := `
		UPDATE users
		SET refresh_token = NULL,
		    updated_at = $2
		WHERE refresh_token = $1
	`

	executor := boundExecutor(ctx, r.db, r.tx)
	result, err := executor.ExecContext(ctx, query, token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to clear refresh token: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil {
		r.logger.Debug("refresh token cleared", zap.Int64("rows", n))
	}
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *UserRepository) WithTx(tx repositories.Transaction) repositories.UserRepository {
	return &UserRepository{
		db:     r.db,
		tx:     tx,
		logger: r.logger,
	}
}

func (r *UserRepository) scanOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	executor := boundExecutor(ctx, r.db, r.tx)
	user := &models.User{}
	var refresh sql.NullString

	err := executor.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.IsVerified,
		&refresh,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if refresh.Valid {
		token := refresh.String
		user.RefreshToken = &token
	}
	return user, nil
}
