package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/upb/tasker-auth/models"
	"github.com/upb/tasker-auth/repositories"
	"go.uber.org/zap"
)

// AuthEventRepository implements the repositories.AuthEventRepository interface
type AuthEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuthEventRepository creates a new auth event repository
func NewAuthEventRepository(db *DB, logger *zap.Logger) repositories.AuthEventRepository {
	return &AuthEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends an event. Called from the audit workers, never on the request path.
func (r *AuthEventRepository) Insert(ctx context.Context, event *models.AuthEvent) error {
	query := `
		INSERT INTO auth_events (
			id, user_id, email, action, reason, ip_address, user_agent, request_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		event.ID,
		event.UserID,
		nullString(event.Email),
		event.Action,
		nullString(event.Reason),
		nullString(event.IPAddress),
		nullString(event.UserAgent),
		nullString(event.RequestID),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auth event: %w", err)
	}

	r.logger.Debug("auth event inserted",
		zap.String("id", event.ID.String()),
		zap.String("action", string(event.Action)))
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
