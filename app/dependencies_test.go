package app

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/tasker-auth/config"
	"github.com/upb/tasker-auth/repositories/postgres"
	"github.com/upb/tasker-auth/repositories/redisstore"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Database: config.DatabaseConfig{
			Driver:   config.DriverPQ,
			Host:     "localhost",
			User:     "tasker",
			Database: "tasker",
		},
		Token: config.TokenConfig{
			AccessSecret:  "test-access-secret",
			RefreshSecret: "test-refresh-secret",
			AccessTTL:     30 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			Issuer:        "tasker-app",
			Audience:      "tasker-users",
		},
		Auth: config.AuthConfig{BcryptCost: 4},
		Revocation: config.RevocationConfig{
			Backend:       config.BackendPostgres,
			SweepInterval: time.Hour,
		},
		RateLimit: config.RateLimitConfig{
			Backend:       config.BackendMemory,
			LoginLimit:    5,
			LoginWindow:   15 * time.Minute,
			RefreshLimit:  5,
			RefreshWindow: 15 * time.Minute,
			APILimit:      100,
			APIWindow:     15 * time.Minute,
			SweepInterval: time.Hour,
		},
		Observability: config.ObservabilityConfig{LogLevel: "error", LogFormat: "json"},
	}
}

func newMockFactory(t *testing.T) (*postgres.RepositoryFactory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	return postgres.NewRepositoryFactoryFromDB(postgres.WrapDB(db, logger), logger), mock
}

func TestBuild(t *testing.T) {
	t.Run("postgres revocation and memory counters", func(t *testing.T) {
		cfg := testConfig(t)
		factory, mock := newMockFactory(t)
		mock.ExpectClose()

		deps, err := Build(cfg, zaptest.NewLogger(t), factory, nil)
		require.NoError(t, err)

		assert.NotNil(t, deps.Users)
		assert.IsType(t, &postgres.RevocationRepository{}, deps.Revocations)
		assert.NotNil(t, deps.AuthEvents)
		assert.NotNil(t, deps.TxManager)
		assert.NotNil(t, deps.Tokens)
		assert.NotNil(t, deps.Sessions)
		assert.NotNil(t, deps.Audit)
		assert.NotNil(t, deps.AuthHandler)
		assert.NotNil(t, deps.UserHandler)
		assert.NotNil(t, deps.HealthHandler)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.RateLimit)
		assert.NotNil(t, deps.APIThrottle)
		assert.NotNil(t, deps.RealIP)
		assert.Equal(t, 5, deps.Policies.Login.Limit)
		assert.Equal(t, 30*time.Minute, deps.Tokens.AccessTTL())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, deps.Close(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis backends", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Revocation.Backend = config.BackendRedis
		cfg.RateLimit.Backend = config.BackendRedis

		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

		factory, mock := newMockFactory(t)
		mock.ExpectClose()

		deps, err := Build(cfg, zaptest.NewLogger(t), factory, client)
		require.NoError(t, err)
		assert.IsType(t, &redisstore.RevocationStore{}, deps.Revocations)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, deps.Close(ctx))
	})

	t.Run("redis revocation without client", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Revocation.Backend = config.BackendRedis

		factory, _ := newMockFactory(t)

		deps, err := Build(cfg, zap.NewNop(), factory, nil)
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize repositories")
	})

	t.Run("identical token secrets", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Token.RefreshSecret = cfg.Token.AccessSecret

		factory, _ := newMockFactory(t)

		deps, err := Build(cfg, zap.NewNop(), factory, nil)
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize services")
	})

	t.Run("invalid trusted proxy", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Server.TrustedProxies = []string{"not-an-ip"}

		factory, _ := newMockFactory(t)

		deps, err := Build(cfg, zap.NewNop(), factory, nil)
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize http layer")
	})
}

func TestNewDependencies_DatabaseUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Host = "invalid-host-that-does-not-exist"
	cfg.Database.Port = 5432
	cfg.Database.SSLMode = "disable"
	cfg.Database.ConnectionString = ""

	deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "failed to initialize database")
}
