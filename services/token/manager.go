// Package token issues and verifies the signed access and refresh tokens of a session.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/tasker-auth/config"
)

// Kind distinguishes access tokens from refresh tokens
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Verification failures. Callers can tell an expired token (ask for a new
// session) from one that will never verify.
var (
	ErrMalformed              = errors.New("token is malformed")
	ErrSignatureInvalid       = errors.New("token signature is invalid")
	ErrExpired                = errors.New("token has expired")
	ErrIssuerAudienceMismatch = errors.New("token issuer or audience mismatch")
	ErrWrongKind              = errors.New("token kind mismatch")
)

// Claims is the payload carried by both token kinds. Email is only set on access tokens.
type Claims struct {
	Email string `json:"email,omitempty"`
	Kind  Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Expiry returns the exp claim, or the zero time when absent
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time.UTC()
}

// Manager owns the signing configuration. Each kind has its own key.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	audience      string
	now           func() time.Time
}

// Option customizes a Manager
type Option func(*Manager)

// WithClock replaces time.Now for issuing and verifying
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager validates cfg and builds a Manager
func NewManager(cfg config.TokenConfig, opts ...Option) (*Manager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}

	m := &Manager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// AccessTTL returns the configured access token lifetime
func (m *Manager) AccessTTL() time.Duration {
	return m.accessTTL
}

// RefreshTTL returns the configured refresh token lifetime
func (m *Manager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// IssueAccess signs an access token for the subject
func (m *Manager) IssueAccess(userID uuid.UUID, email string) (string, error) {
	return m.issue(KindAccess, userID, email, m.now())
}

// IssueAccessAfter signs an access token issued at least one claim tick
// (jwt.TimePrecision) after the given time. Renewal passes the refresh
// token's iat so the new exp is strictly later than the login's.
func (m *Manager) IssueAccessAfter(userID uuid.UUID, email string, after time.Time) (string, error) {
	issuedAt := m.now()
	if floor := after.Truncate(jwt.TimePrecision).Add(jwt.TimePrecision); issuedAt.Before(floor) {
		issuedAt = floor
	}
	return m.issue(KindAccess, userID, email, issuedAt)
}

// IssueRefresh signs a refresh token for the subject
func (m *Manager) IssueRefresh(userID uuid.UUID) (string, error) {
	return m.issue(KindRefresh, userID, "", m.now())
}

// IssuePair signs an access and a refresh token sharing one issue time
func (m *Manager) IssuePair(userID uuid.UUID, email string) (access, refresh string, err error) {
	now := m.now()
	if access, err = m.issue(KindAccess, userID, email, now); err != nil {
		return "", "", err
	}
	if refresh, err = m.issue(KindRefresh, userID, "", now); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (m *Manager) issue(kind Kind, userID uuid.UUID, email string, now time.Time) (string, error) {
	secret, ttl := m.keyFor(kind)

	claims := Claims{
		Email: email,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks signature, issuer, audience and expiry with the key for kind.
// Errors are one of the package's sentinel verification errors.
func (m *Manager) Verify(tokenString string, kind Kind) (*Claims, error) {
	secret, _ := m.keyFor(kind)

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	if claims.Kind != kind {
		return nil, ErrWrongKind
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (m *Manager) keyFor(kind Kind) ([]byte, time.Duration) {
	if kind == KindRefresh {
		return m.refreshSecret, m.refreshTTL
	}
	return m.accessSecret, m.accessTTL
}

// classify maps jwt/v5 validation errors onto the package sentinels.
// A token signed with the other kind's key fails here as SignatureInvalid.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrIssuerAudienceMismatch
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

// ExpiryUnverified reads exp without checking the signature. It is for
// scheduling decisions only and must never authorize anything.
func ExpiryUnverified(tokenString string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrMalformed
	}
	return claims.ExpiresAt.Time, nil
}
