package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthAction names a security-relevant session event
type AuthAction string

const (
	ActionRegistered     AuthAction = "registered"
	ActionLoginSucceeded AuthAction = "login_succeeded"
	ActionLoginFailed    AuthAction = "login_failed"
	ActionLogout         AuthAction = "logout"
	ActionTokenRenewed   AuthAction = "token_renewed"
	ActionRenewRejected  AuthAction = "renew_rejected"
	ActionTokenRevoked   AuthAction = "token_revoked"
	ActionRateLimited    AuthAction = "rate_limited"
)

// AuthEvent is one row of the authentication audit trail.
// It never carries passwords, digests or token strings.
type AuthEvent struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	Email     string     `json:"email,omitempty" db:"email"`
	Action    AuthAction `json:"action" db:"action"`
	Reason    string     `json:"reason,omitempty" db:"reason"`
	IPAddress string     `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string     `json:"user_agent,omitempty" db:"user_agent"`
	RequestID string     `json:"request_id,omitempty" db:"request_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the AuthEvent model
func (AuthEvent) TableName() string {
	return "auth_events"
}

// NewAuthEvent creates an event stamped with the current time
func NewAuthEvent(action AuthAction, userID *uuid.UUID, email string) *AuthEvent {
	return &AuthEvent{
		ID:        uuid.New(),
		UserID:    userID,
		Email:     NormalizeEmail(email),
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}
}

// WithRequest attaches where the event came from
func (e *AuthEvent) WithRequest(requestID, ipAddress, userAgent string) *AuthEvent {
	e.RequestID = requestID
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}

// WithReason attaches a short machine-readable reason
func (e *AuthEvent) WithReason(reason string) *AuthEvent {
	e.Reason = reason
	return e
}
