package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/upb/tasker-auth/models"
	"github.com/upb/tasker-auth/repositories"
	"github.com/upb/tasker-auth/services"
)

// CredentialVerifier checks submitted email/password pairs against identity records
type CredentialVerifier struct {
	users  repositories.UserRepository
	hasher PasswordHasher

	dummyOnce   sync.Once
	dummyDigest string
}

// NewCredentialVerifier creates a CredentialVerifier
func NewCredentialVerifier(users repositories.UserRepository, hasher PasswordHasher) *CredentialVerifier {
	return &CredentialVerifier{
		users:  users,
		hasher: hasher,
	}
}

// FindByEmail looks the identity up by its normalized email.
// Returns services.ErrUserNotFound when there is none.
func (v *CredentialVerifier) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := v.users.GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.WrapInternal("failed to load user", err)
	}
	return user, nil
}

// CheckPassword reports whether plain matches digest
func (v *CredentialVerifier) CheckPassword(plain, digest string) bool {
	return v.hasher.Verify(plain, digest)
}

// Verify returns the identity for a matching, verified pair and
// services.ErrInvalidCredentials for every kind of mismatch.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*models.User, error) {
	user, err := v.FindByEmail(ctx, email)
	if err != nil {
		if services.IsNotFoundError(err) {
			// Spend a hash comparison anyway so response time does not reveal the account exists
			v.CheckPassword(password, v.dummy())
			return nil, services.ErrInvalidCredentials
		}
		return nil, err
	}

	if !v.CheckPassword(password, user.PasswordHash) {
		return nil, services.ErrInvalidCredentials
	}
	if !user.IsVerified {
		return nil, services.ErrInvalidCredentials
	}
	return user, nil
}

func (v *CredentialVerifier) dummy() string {
	v.dummyOnce.Do(func() {
		digest, err := v.hasher.Hash("tasker-placeholder-password")
		if err == nil {
			v.dummyDigest = digest
		}
	})
	return v.dummyDigest
}
