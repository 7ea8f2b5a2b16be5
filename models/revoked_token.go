package models

import (
	"time"

	"github.com/google/uuid"
)

// RevokedToken is a denylist entry for an access token that must be rejected
// before its natural expiry. It stops mattering once ExpiresAt passes.
type RevokedToken struct {
	Token     string    `json:"-" db:"token"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the RevokedToken model
func (RevokedToken) TableName() string {
	return "revoked_tokens"
}

// NewRevokedToken creates an entry that expires together with the token itself
func NewRevokedToken(token string, userID uuid.UUID, expiresAt time.Time) *RevokedToken {
	return &RevokedToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
}

// ActiveAt reports whether the entry still applies at t. An entry expiring exactly at t does not.
func (r *RevokedToken) ActiveAt(t time.Time) bool {
	return r.ExpiresAt.After(t)
}

// TTL returns how long the entry must be kept from now; zero or negative means already expired
func (r *RevokedToken) TTL(now time.Time) time.Duration {
	return r.ExpiresAt.Sub(now)
}
