package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PostgresStore keeps fixed-window counters in the rate_limit_windows table.
// Windows are aligned to multiples of the window length.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Hit implements Store. The upsert only increments while hits < limit, so a
// rejected request returns no row and is not counted.
func (s *PostgresStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := s.now().UTC()
	windowStart, resetAt := getWindowBounds(now, window)

	query := `
		INSERT INTO rate_limit_windows (scope_key, window_start, window_end, hits)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (scope_key, window_start) DO UPDATE
		SET hits = rate_limit_windows.hits + 1
		WHERE rate_limit_windows.hits < $4
		RETURNING hits
	`

	var hits int
	err := s.db.QueryRowContext(ctx, query, key, windowStart, resetAt, limit).Scan(&hits)
	if errors.Is(err, sql.ErrNoRows) {
		return windowResult(false, limit, limit, resetAt, now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record rate limit hit: %w", err)
	}

	return windowResult(true, limit, hits, resetAt, now), nil
}

// getWindowBounds returns the start and reset time of the window containing now
func getWindowBounds(now time.Time, window time.Duration) (start time.Time, reset time.Time) {
	start = now.Truncate(window)
	return start, start.Add(window)
}

// CleanupElapsedWindows removes windows that ended before the given time
func (s *PostgresStore) CleanupElapsedWindows(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM rate_limit_windows
		WHERE window_end <= $1
	`

	result, err := s.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rate limit windows: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Debug("cleaned up rate limit windows",
		zap.Int64("rows_deleted", rowsAffected),
		zap.Time("before", before))

	return rowsAffected, nil
}

// StartCleanupWorker starts a background worker to periodically drop elapsed windows
func (s *PostgresStore) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started rate limit cleanup worker", zap.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupElapsedWindows(ctx, s.now().UTC()); err != nil {
				s.logger.Error("failed to cleanup rate limit windows", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Info("stopping rate limit cleanup worker")
			return
		}
	}
}
