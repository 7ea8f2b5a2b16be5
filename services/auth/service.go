// Package auth implements credential checks and the session lifecycle:
// login, logout, renewal and access-token authentication.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tasker-auth/models"
	"github.com/upb/tasker-auth/repositories"
	"github.com/upb/tasker-auth/services"
	"github.com/upb/tasker-auth/services/token"
	"go.uber.org/zap"
)

// EventRecorder receives audit events; implementations must not block
type EventRecorder interface {
	Record(ctx context.Context, event *models.AuthEvent)
}

// Config holds session policy
type Config struct {
	RequireEmailVerification bool
}

// RegisterInput is the data needed to create an identity
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginResult is returned by a successful login
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         models.UserView
}

// Service is the session manager.
// Each identity holds at most one refresh token; a new login replaces it.
type Service struct {
	users       repositories.UserRepository
	revocations repositories.RevocationStore
	txManager   repositories.TransactionManager
	tokens      *token.Manager
	hasher      PasswordHasher
	credentials *CredentialVerifier
	events      EventRecorder
	config      Config
	logger      *zap.Logger
}

// NewService creates a new session Service. events may be nil.
func NewService(
	users repositories.UserRepository,
	revocations repositories.RevocationStore,
	txManager repositories.TransactionManager,
	tokens *token.Manager,
	hasher PasswordHasher,
	events EventRecorder,
	config Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		users:       users,
		revocations: revocations,
		txManager:   txManager,
		tokens:      tokens,
		hasher:      hasher,
		credentials: NewCredentialVerifier(users, hasher),
		events:      events,
		config:      config,
		logger:      logger,
	}
}

// Tokens exposes the token manager for cookie lifetimes
func (s *Service) Tokens() *token.Manager {
	return s.tokens
}

// Register creates a new identity. The email check and insert share one transaction.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*models.UserView, error) {
	name := strings.TrimSpace(input.Name)
	email := models.NormalizeEmail(input.Email)
	if name == "" || email == "" || input.Password == "" {
		return nil, services.NewDomainError(services.ErrorTypeBadRequest, "Name, email and password are required", nil)
	}
	if len(input.Password) > MaxPasswordBytes {
		return nil, services.ErrPasswordTooLong
	}

	digest, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, services.WrapInternal("failed to hash password", err)
	}

	user := models.NewUser(name, email, digest, !s.config.RequireEmailVerification)

	_, err = services.WithTransaction(ctx, s.txManager, func(ctx context.Context, tx repositories.Transaction) (*models.User, error) {
		users := s.users.WithTx(tx)

		_, err := users.GetByEmail(ctx, email)
		if err == nil {
			return nil, services.ErrDuplicateEmail
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, services.WrapInternal("failed to check existing user", err)
		}

		if err := users.Create(ctx, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return nil, services.ErrDuplicateEmail
			}
			return nil, services.WrapInternal("failed to create user", err)
		}
		return user, nil
	})
	if err != nil {
		var domainErr *services.DomainError
		if !errors.As(err, &domainErr) {
			return nil, services.WrapInternal("failed to register user", err)
		}
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID.String()))
	s.record(ctx, models.NewAuthEvent(models.ActionRegistered, &user.ID, user.Email))

	view := user.View()
	return &view, nil
}

// Login checks credentials, issues a token pair and stores the refresh token,
// replacing any refresh token from an earlier login.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, services.ErrMissingCredentials
	}

	user, err := s.credentials.Verify(ctx, email, password)
	if err != nil {
		if services.IsInvalidCredentialsError(err) {
			s.logger.Info("login rejected")
			s.record(ctx, models.NewAuthEvent(models.ActionLoginFailed, nil, email).WithReason("invalid_credentials"))
		}
		return nil, err
	}

	accessToken, refreshToken, err := s.tokens.IssuePair(user.ID, user.Email)
	if err != nil {
		return nil, services.WrapInternal("failed to issue tokens", err)
	}

	if err := s.users.SetRefreshToken(ctx, user.ID, &refreshToken); err != nil {
		return nil, services.WrapInternal("failed to store refresh token", err)
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID.String()))
	s.record(ctx, models.NewAuthEvent(models.ActionLoginSucceeded, &user.ID, user.Email))

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.View(),
	}, nil
}

// Logout clears the stored refresh token and, when accessToken is given,
// revokes it until its own expiry. Repeating a logout is not an error.
func (s *Service) Logout(ctx context.Context, refreshToken, accessToken string) error {
	if refreshToken == "" {
		return services.ErrMissingRefreshToken
	}

	if err := s.users.ClearRefreshToken(ctx, refreshToken); err != nil {
		return services.WrapInternal("failed to clear refresh token", err)
	}

	var userID *uuid.UUID
	if accessToken != "" {
		id, err := s.revoke(ctx, accessToken)
		if err != nil {
			return err
		}
		userID = id
	}

	s.logger.Info("user logged out", zap.Bool("access_token_revoked", userID != nil))
	s.record(ctx, models.NewAuthEvent(models.ActionLogout, userID, ""))
	return nil
}

// revoke adds accessToken to the revocation store. Tokens that no longer
// verify are skipped since the guard rejects them anyway.
func (s *Service) revoke(ctx context.Context, accessToken string) (*uuid.UUID, error) {
	claims, err := s.tokens.Verify(accessToken, token.KindAccess)
	if err != nil {
		s.logger.Debug("not revoking unverifiable access token", zap.Error(err))
		return nil, nil
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, nil
	}

	entry := models.NewRevokedToken(accessToken, userID, claims.Expiry())
	if err := s.revocations.Add(ctx, entry); err != nil {
		return nil, services.WrapInternal("failed to revoke access token", err)
	}

	s.record(ctx, models.NewAuthEvent(models.ActionTokenRevoked, &userID, claims.Email))
	return &userID, nil
}

// Renew returns a new access token for a refresh token that verifies and is
// still the one stored on its identity. The refresh token itself is kept.
func (s *Service) Renew(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", services.ErrMissingRefreshToken
	}

	claims, err := s.tokens.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		s.rejectRenew(ctx, nil, err.Error())
		return "", services.WrapInvalidToken(services.ErrInvalidRefresh, err)
	}

	userID, err := claims.UserID()
	if err != nil {
		return "", services.WrapInvalidToken(services.ErrInvalidRefresh, err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.rejectRenew(ctx, &userID, "unknown_user")
			return "", services.ErrInvalidRefresh
		}
		return "", services.WrapInternal("failed to load user", err)
	}

	if !user.HasRefreshToken(refreshToken) {
		s.rejectRenew(ctx, &userID, "refresh_token_mismatch")
		return "", services.ErrInvalidRefresh
	}

	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	accessToken, err := s.tokens.IssueAccessAfter(user.ID, user.Email, issuedAt)
	if err != nil {
		return "", services.WrapInternal("failed to issue access token", err)
	}

	s.logger.Debug("access token renewed", zap.String("user_id", user.ID.String()))
	s.record(ctx, models.NewAuthEvent(models.ActionTokenRenewed, &user.ID, user.Email))
	return accessToken, nil
}

func (s *Service) rejectRenew(ctx context.Context, userID *uuid.UUID, reason string) {
	s.logger.Info("refresh rejected", zap.String("reason", reason))
	s.record(ctx, models.NewAuthEvent(models.ActionRenewRejected, userID, "").WithReason(reason))
}

// Authenticate resolves an access token to its claims.
// Missing and revoked tokens are unauthorized; tokens that fail verification are invalid.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*token.Claims, error) {
	if accessToken == "" {
		return nil, services.ErrUnauthorized
	}

	revoked, err := s.revocations.Contains(ctx, accessToken)
	if err != nil {
		return nil, services.WrapInternal("failed to check token revocation", err)
	}
	if revoked {
		return nil, services.ErrTokenRevoked
	}

	claims, err := s.tokens.Verify(accessToken, token.KindAccess)
	if err != nil {
		return nil, services.WrapInvalidToken(services.ErrInvalidToken, err)
	}
	return claims, nil
}

// CurrentUser returns the redacted view of an identity
func (s *Service) CurrentUser(ctx context.Context, userID uuid.UUID) (*models.UserView, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.WrapInternal("failed to load user", err)
	}
	view := user.View()
	return &view, nil
}

func (s *Service) record(ctx context.Context, event *models.AuthEvent) {
	if s.events != nil {
		s.events.Record(ctx, event)
	}
}
