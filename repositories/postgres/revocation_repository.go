package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/tasker-auth/models"
	"github.com/upb/tasker-auth/repositories"
	"go.uber.org/zap"
)

// RevocationRepository stores revoked access tokens in the revoked_tokens table.
// Postgres has no native row TTL, so Contains filters on expires_at and a
// cleanup worker prunes rows that can no longer match.
type RevocationRepository struct {
	db     *DB
	logger *zap.Logger
	now    func() time.Time
}

// NewRevocationRepository creates a new revocation repository
func NewRevocationRepository(db *DB, logger *zap.Logger) *RevocationRepository {
	return &RevocationRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

var (
	_ repositories.RevocationStore   = (*RevocationRepository)(nil)
	_ repositories.RevocationSweeper = (*RevocationRepository)(nil)
)

// Add inserts a revocation entry. Re-adding a token keeps the later expiry.
func (r *RevocationRepository) Add(ctx context.Context, entry *models.RevokedToken) error {
	query := `
		INSERT INTO revoked_tokens (token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO UPDATE
		SET expires_at = GREATEST(revoked_tokens.expires_at, EXCLUDED.expires_at)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		entry.Token,
		entry.UserID,
		entry.ExpiresAt,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert revoked token: %w", err)
	}

	r.logger.Debug("access token revoked",
		zap.String("user_id", entry.UserID.String()),
		zap.Time("expires_at", entry.ExpiresAt))
	return nil
}

// Contains reports whether token has an entry that has not yet expired
func (r *RevocationRepository) Contains(ctx context.Context, token string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM revoked_tokens
			WHERE token = $1 AND expires_at > $2
		)
	`

	var exists bool
	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, query, token, r.now().UTC()).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to query revoked token: %w", err)
	}
	return exists, nil
}

// DeleteExpired removes entries that expired at or before the cutoff
func (r *RevocationRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM revoked_tokens WHERE expires_at <= $1`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired revoked tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// StartCleanupWorker prunes expired entries every interval until ctx is done
func (r *RevocationRepository) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("started revocation cleanup worker", zap.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			deleted, err := r.DeleteExpired(ctx, r.now())
			if err != nil {
				r.logger.Error("failed to prune revoked tokens", zap.Error(err))
				continue
			}
			if deleted > 0 {
				r.logger.Info("pruned revoked tokens", zap.Int64("rows_deleted", deleted))
			}
		case <-ctx.Done():
			r.logger.Info("stopping revocation cleanup worker")
			return
		}
	}
}
