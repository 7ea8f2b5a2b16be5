package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/tasker-auth/config"
	"github.com/upb/tasker-auth/models"
	"github.com/upb/tasker-auth/repositories"
	"github.com/upb/tasker-auth/services"
	"github.com/upb/tasker-auth/services/token"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	service     *Service
	users       *memoryUsers
	revocations *memoryRevocations
	txManager   *fakeTxManager
	events      *eventLog
	clock       *testClock
}

func sessionTokenConfig() config.TokenConfig {
	return config.TokenConfig{
		AccessSecret:  "access-secret-for-session-tests-01",
		RefreshSecret: "refresh-secret-for-session-tests-1",
		AccessTTL:     30 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "tasker-app",
		Audience:      "tasker-users",
	}
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	clock := &testClock{t: time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)}
	tokens, err := token.NewManager(sessionTokenConfig(), token.WithClock(clock.Now))
	require.NoError(t, err)

	env := &testEnv{
		users:       newMemoryUsers(),
		revocations: newMemoryRevocations(clock.Now),
		txManager:   &fakeTxManager{},
		events:      &eventLog{},
		clock:       clock,
	}
	env.service = NewService(
		env.users,
		env.revocations,
		env.txManager,
		tokens,
		NewBcryptHasher(bcrypt.MinCost),
		env.events,
		cfg,
		zap.NewNop(),
	)
	return env
}

func (e *testEnv) register(t *testing.T, email, password string) *models.UserView {
	t.Helper()
	view, err := e.service.Register(context.Background(), RegisterInput{
		Name:     "Test User",
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return view
}

func TestService_Register(t *testing.T) {
	t.Run("creates normalized verified user", func(t *testing.T) {
		env := newTestEnv(t, Config{})

		view, err := env.service.Register(context.Background(), RegisterInput{
			Name:     "  Ana Gomez ",
			Email:    " Ana@Example.COM",
			Password: "secret123",
		})
		require.NoError(t, err)

		assert.Equal(t, "Ana Gomez", view.Name)
		assert.Equal(t, "ana@example.com", view.Email)
		assert.True(t, view.IsVerified)

		stored, err := env.users.GetByID(context.Background(), view.ID)
		require.NoError(t, err)
		assert.NotEqual(t, "secret123", stored.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret123")))
		assert.Equal(t, 1, env.txManager.commits)
		assert.Contains(t, env.events.actions(), models.ActionRegistered)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		env.register(t, "ana@example.com", "secret123")

		_, err := env.service.Register(context.Background(), RegisterInput{
			Name:     "Other",
			Email:    "ANA@example.com",
			Password: "another1",
		})
		assert.True(t, services.IsConflictError(err))
		assert.Equal(t, 1, env.txManager.rollbacks)
	})

	t.Run("racing insert maps to conflict", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		users := new(MockUserRepository)
		users.On("WithTx", mock.Anything).Return(users)
		users.On("GetByEmail", mock.Anything, "ana@example.com").Return(nil, repositories.ErrNotFound)
		users.On("Create", mock.Anything, mock.Anything).Return(repositories.ErrDuplicate)
		env.service.users = users

		_, err := env.service.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "secret123"})
		assert.ErrorIs(t, err, services.ErrDuplicateEmail)
		users.AssertExpectations(t)
	})

	t.Run("missing fields", func(t *testing.T) {
		env := newTestEnv(t, Config{})

		_, err := env.service.Register(context.Background(), RegisterInput{Name: " ", Email: "ana@example.com", Password: "x"})
		assert.True(t, services.IsBadRequestError(err))
	})

	t.Run("password over bcrypt byte limit is a bad request", func(t *testing.T) {
		env := newTestEnv(t, Config{})

		_, err := env.service.Register(context.Background(), RegisterInput{
			Name:     "Ana",
			Email:    "ana@example.com",
			Password: strings.Repeat("é", 40),
		})
		assert.ErrorIs(t, err, services.ErrPasswordTooLong)
		assert.True(t, services.IsBadRequestError(err))
		assert.Equal(t, 0, env.txManager.commits)
	})

	t.Run("password at bcrypt byte limit is accepted", func(t *testing.T) {
		env := newTestEnv(t, Config{})

		view := env.register(t, "ana@example.com", strings.Repeat("é", 36))
		assert.NotNil(t, view)
	})

	t.Run("verification required leaves user unverified", func(t *testing.T) {
		env := newTestEnv(t, Config{RequireEmailVerification: true})

		view := env.register(t, "ana@example.com", "secret123")
		assert.False(t, view.IsVerified)

		_, err := env.service.Login(context.Background(), "ana@example.com", "secret123")
		assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	})
}

func TestService_Login(t *testing.T) {
	env := newTestEnv(t, Config{})
	user := env.register(t, "ana@example.com", "secret123")

	tests := []struct {
		name     string
		email    string
		password string
		check    func(error) bool
	}{
		{name: "missing email", email: "", password: "secret123", check: services.IsBadRequestError},
		{name: "missing password", email: "ana@example.com", password: "", check: services.IsBadRequestError},
		{name: "unknown email", email: "nobody@example.com", password: "secret123", check: services.IsInvalidCredentialsError},
		{name: "wrong password", email: "ana@example.com", password: "wrong-pass", check: services.IsInvalidCredentialsError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.service.Login(context.Background(), tt.email, tt.password)
			assert.Nil(t, result)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}

	t.Run("unknown email and wrong password look the same", func(t *testing.T) {
		_, unknownErr := env.service.Login(context.Background(), "nobody@example.com", "secret123")
		_, wrongErr := env.service.Login(context.Background(), "ana@example.com", "nope-nope")
		assert.Equal(t, services.GetErrorMessage(unknownErr), services.GetErrorMessage(wrongErr))
	})

	t.Run("success", func(t *testing.T) {
		result, err := env.service.Login(context.Background(), " ANA@example.com ", "secret123")
		require.NoError(t, err)

		assert.NotEmpty(t, result.AccessToken)
		assert.NotEmpty(t, result.RefreshToken)
		assert.Equal(t, user.ID, result.User.ID)

		stored := env.users.storedRefresh(user.ID)
		require.NotNil(t, stored)
		assert.Equal(t, result.RefreshToken, *stored)
		assert.Contains(t, env.events.actions(), models.ActionLoginSucceeded)
		assert.Contains(t, env.events.actions(), models.ActionLoginFailed)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		users := new(MockUserRepository)
		users.On("GetByEmail", mock.Anything, "ana@example.com").Return(nil, errors.New("connection refused"))
		svc := NewService(users, env.revocations, env.txManager, env.service.tokens, env.service.hasher, nil, Config{}, zap.NewNop())

		_, err := svc.Login(context.Background(), "ana@example.com", "secret123")
		assert.True(t, services.IsInternalError(err))
		assert.NotContains(t, services.GetErrorMessage(err), "connection refused")
	})
}

func TestService_LoginThenRenew(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.register(t, "ana@example.com", "secret123")
	ctx := context.Background()

	login, err := env.service.Login(ctx, "ana@example.com", "secret123")
	require.NoError(t, err)

	env.clock.Advance(time.Minute)

	access, err := env.service.Renew(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.AccessToken, access)

	original, err := env.service.tokens.Verify(login.AccessToken, token.KindAccess)
	require.NoError(t, err)
	renewed, err := env.service.tokens.Verify(access, token.KindAccess)
	require.NoError(t, err)
	assert.True(t, renewed.Expiry().After(original.Expiry()))

	// refresh token is not rotated
	again, err := env.service.Renew(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, again)
}

func TestService_RenewInSameInstantAsLogin(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.register(t, "ana@example.com", "secret123")
	ctx := context.Background()

	login, err := env.service.Login(ctx, "ana@example.com", "secret123")
	require.NoError(t, err)

	// no clock advance between login and renewal
	access, err := env.service.Renew(ctx, login.RefreshToken)
	require.NoError(t, err)

	original, err := env.service.tokens.Verify(login.AccessToken, token.KindAccess)
	require.NoError(t, err)
	renewed, err := env.service.tokens.Verify(access, token.KindAccess)
	require.NoError(t, err)
	assert.True(t, renewed.Expiry().After(original.Expiry()))
}

func TestService_RenewWithRealClock(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.register(t, "ana@example.com", "secret123")

	tokens, err := token.NewManager(sessionTokenConfig())
	require.NoError(t, err)
	svc := NewService(env.users, env.revocations, env.txManager, tokens, env.service.hasher, nil, Config{}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		login, err := svc.Login(ctx, "ana@example.com", "secret123")
		require.NoError(t, err)
		access, err := svc.Renew(ctx, login.RefreshToken)
		require.NoError(t, err)

		original, err := token.ExpiryUnverified(login.AccessToken)
		require.NoError(t, err)
		renewed, err := token.ExpiryUnverified(access)
		require.NoError(t, err)
		require.True(t, renewed.After(original), "round %d: %s not after %s", i, renewed, original)
	}
}

func TestService_SecondLoginInvalidatesFirstRefreshToken(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.register(t, "ana@example.com", "secret123")
	ctx := context.Background()

	first, err := env.service.Login(ctx, "ana@example.com", "secret123")
	require.NoError(t, err)

	_, err = env.service.Renew(ctx, first.RefreshToken)
	require.NoError(t, err)

	second, err := env.service.Login(ctx, "ana@example.com", "secret123")
	require.NoError(t, err)

	_, err = env.service.Renew(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, services.ErrInvalidToken)

	_, err = env.service.Renew(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestService_Logout(t *testing.T) {
	t.Run("missing refresh token", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		err := env.service.Logout(context.Background(), "", "")
		assert.ErrorIs(t, err, services.ErrMissingRefreshToken)
	})

	t.Run("logout then renew fails and logout repeats", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		user := env.register(t, "ana@example.com", "secret123")
		ctx := context.Background()

		login, err := env.service.Login(ctx, "ana@example.com", "secret123")
		require.NoError(t, err)

		require.NoError(t, env.service.Logout(ctx, login.RefreshToken, ""))
		assert.Nil(t, env.users.storedRefresh(user.ID))

		_, err = env.service.Renew(ctx, login.RefreshToken)
		assert.True(t, services.IsInvalidTokenError(err))

		assert.NoError(t, env.service.Logout(ctx, login.RefreshToken, ""))
	})

	t.Run("stale refresh token does not clear newer session", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		env.register(t, "ana@example.com", "secret123")
		ctx := context.Background()

		first, err := env.service.Login(ctx, "ana@example.com", "secret123")
		require.NoError(t, err)
		second, err := env.service.Login(ctx, "ana@example.com", "secret123")
		require.NoError(t, err)

		require.NoError(t, env.service.Logout(ctx, first.RefreshToken, ""))

		_, err = env.service.Renew(ctx, second.RefreshToken)
		assert.NoError(t, err)
	})

	t.Run("revocation store failure is internal", func(t *testing.T) {
		env := newTestEnv(t, Config{})
		env.register(t, "ana@example.com", "secret123")
		ctx := context.Background()

		login, err := env.service.Login(ctx, "ana@example.com", "secret123")
		require.NoError(t, err)

		store := new(MockRevocationStore)
		store.On("Add", mock.Anything, mock.Anything).Return(errors.New("redis down"))
		env.service.revocations = store

		err = env.service.Logout(ctx, login.RefreshToken, login.AccessToken)
		assert.True(t, services.IsInternalError(err))
	})
}

func TestService_RevokedAccessToken(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.register(t, "ana@example.com", "secret123")
	ctx := context.Background()

	login, err := env.service.Login(ctx, "ana@example.com", "secret123")
	require.NoError(t, err)

	claims, err := env.service.Authenticate(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", claims.Email)

	require.NoError(t, env.service.Logout(ctx, login.RefreshToken, login.AccessToken))

	entry := env.revocations.entries[login.AccessToken]
	require.NotNil(t, entry)
	assert.True(t, entry.ExpiresAt.Equal(claims.Expiry()))

	_, err = env.service.Authenticate(ctx, login.AccessToken)
	assert.ErrorIs(t, err, services.ErrTokenRevoked)

	// still cryptographically valid
	_, err = env.service.tokens.Verify(login.AccessToken, token.KindAccess)
	assert.NoError(t, err)

	env.clock.Advance(31 * time.Minute)

	revoked, err := env.revocations.Contains(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.False(t, revoked)

	_, err = env.service.Authenticate(ctx, login.AccessToken)
	assert.ErrorIs(t, err, services.ErrInvalidToken)
	assert.ErrorIs(t, err, token.ErrExpired)
}

func TestService_Authenticate(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.register(t, "ana@example.com", "secret123")
	ctx := context.Background()

	login, err := env.service.Login(ctx, "ana@example.com", "secret123")
	require.NoError(t, err)

	t.Run("missing token", func(t *testing.T) {
		_, err := env.service.Authenticate(ctx, "")
		assert.ErrorIs(t, err, services.ErrUnauthorized)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := env.service.Authenticate(ctx, "abc.def.ghi")
		assert.ErrorIs(t, err, services.ErrInvalidToken)
		assert.False(t, services.IsTokenRevokedError(err))
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		_, err := env.service.Authenticate(ctx, login.RefreshToken)
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("revocation lookup failure fails closed", func(t *testing.T) {
		store := new(MockRevocationStore)
		store.On("Contains", mock.Anything, login.AccessToken).Return(false, errors.New("timeout"))
		svc := NewService(env.users, store, env.txManager, env.service.tokens, env.service.hasher, nil, Config{}, zap.NewNop())

		_, err := svc.Authenticate(ctx, login.AccessToken)
		assert.True(t, services.IsInternalError(err))
		store.AssertExpectations(t)
	})
}

func TestService_Renew_Failures(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.register(t, "ana@example.com", "secret123")
	ctx := context.Background()

	login, err := env.service.Login(ctx, "ana@example.com", "secret123")
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		_, err := env.service.Renew(ctx, "")
		assert.True(t, services.IsBadRequestError(err))
	})

	t.Run("access token presented", func(t *testing.T) {
		_, err := env.service.Renew(ctx, login.AccessToken)
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("unknown subject", func(t *testing.T) {
		orphan, err := env.service.tokens.IssueRefresh(uuid.New())
		require.NoError(t, err)

		_, err = env.service.Renew(ctx, orphan)
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		env.clock.Advance(8 * 24 * time.Hour)
		_, err := env.service.Renew(ctx, login.RefreshToken)
		assert.ErrorIs(t, err, services.ErrInvalidToken)
		assert.ErrorIs(t, err, token.ErrExpired)
	})

	assert.Contains(t, env.events.actions(), models.ActionRenewRejected)
}

func TestService_CurrentUser(t *testing.T) {
	env := newTestEnv(t, Config{})
	user := env.register(t, "ana@example.com", "secret123")

	view, err := env.service.CurrentUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, view.Email)

	_, err = env.service.CurrentUser(context.Background(), uuid.New())
	assert.True(t, services.IsNotFoundError(err))
}
