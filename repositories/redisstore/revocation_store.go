package redisstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/tasker-auth/models"
	"github.com/upb/tasker-auth/repositories"
	"go.uber.org/zap"
)

const revokedKeyPrefix = "revoked:"

// RevocationStore keeps revoked access tokens as Redis keys whose TTL matches
// the token's remaining lifetime, so entries disappear without a sweep.
// Values are "<expires unix ms>:<user id>"; Contains also compares the stored
// expiry so an entry queried exactly at its deadline reads as absent.
type RevocationStore struct {
	client redis.UniversalClient
	logger *zap.Logger
	now    func() time.Time
}

// NewRevocationStore creates a Redis-backed revocation store
func NewRevocationStore(client redis.UniversalClient, logger *zap.Logger) *RevocationStore {
	return &RevocationStore{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

var _ repositories.RevocationStore = (*RevocationStore)(nil)

// Add stores the entry; an entry that has already expired is dropped
func (s *RevocationStore) Add(ctx context.Context, entry *models.RevokedToken) error {
	ttl := entry.TTL(s.now())
	if ttl <= 0 {
		s.logger.Debug("skipping revocation of expired token",
			zap.String("user_id", entry.UserID.String()))
		return nil
	}

	value := strconv.FormatInt(entry.ExpiresAt.UnixMilli(), 10) + ":" + entry.UserID.String()
	if err := s.client.Set(ctx, revokedKey(entry.Token), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store revoked token: %w", err)
	}

	s.logger.Debug("access token revoked",
		zap.String("user_id", entry.UserID.String()),
		zap.Duration("ttl", ttl))
	return nil
}

// Contains reports whether token has a live revocation entry
func (s *RevocationStore) Contains(ctx context.Context, token string) (bool, error) {
	value, err := s.client.Get(ctx, revokedKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query revoked token: %w", err)
	}

	expiresMillis, _, _ := strings.Cut(value, ":")
	ms, err := strconv.ParseInt(expiresMillis, 10, 64)
	if err != nil {
		// Unparseable entries still came from Add; honor the key's own TTL
		return true, nil
	}
	return time.UnixMilli(ms).After(s.now()), nil
}

// revokedKey hashes the token so key length stays fixed
func revokedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return revokedKeyPrefix + hex.EncodeToString(sum[:])
}
