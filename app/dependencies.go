package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/tasker-auth/auth"
	"github.com/upb/tasker-auth/config"
	"github.com/upb/tasker-auth/handlers"
	"github.com/upb/tasker-auth/middleware"
	"github.com/upb/tasker-auth/repositories"
	"github.com/upb/tasker-auth/repositories/postgres"
	"github.com/upb/tasker-auth/repositories/redisstore"
	"github.com/upb/tasker-auth/services/audit"
	authservice "github.com/upb/tasker-auth/services/auth"
	"github.com/upb/tasker-auth/services/ratelimit"
	"github.com/upb/tasker-auth/services/token"
	"go.uber.org/zap"
)

const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Redis  *redis.Client
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users       repositories.UserRepository
	Revocations repositories.RevocationStore
	AuthEvents  repositories.AuthEventRepository
	TxManager   repositories.TransactionManager

	// Services
	Tokens   *token.Manager
	Sessions *authservice.Service
	Audit    *audit.AuditService
	Policies ratelimit.Policies

	// HTTP
	AuthHandler    *auth.Handler
	UserHandler    *handlers.UserHandler
	HealthHandler  *handlers.HealthHandler
	AuthMiddleware *middleware.AuthMiddleware
	RateLimit      *middleware.RateLimitMiddleware
	APIThrottle    *middleware.RateLimitMiddleware
	RealIP         func(http.Handler) http.Handler

	stopWorkers context.CancelFunc
	workers     sync.WaitGroup
}

// NewDependencies opens Postgres and, when a backend needs it, Redis,
// then wires every service on top of them.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient, err = redisstore.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			_ = factory.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
	}

	deps, err := Build(cfg, logger, factory, redisClient)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		_ = factory.Close()
		return nil, err
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// Build wires services and handlers over already opened infrastructure.
// redisClient may be nil when no backend selects Redis.
func Build(cfg *config.Config, logger *zap.Logger, factory *postgres.RepositoryFactory, redisClient *redis.Client) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
		Redis:       redisClient,
		Policies:    ratelimit.PoliciesFromConfig(cfg.RateLimit),
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	deps.stopWorkers = cancel

	if err := deps.initRepositories(workerCtx); err != nil {
		deps.abort()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := deps.initServices(); err != nil {
		deps.abort()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := deps.initRateLimiting(workerCtx); err != nil {
		deps.abort()
		return nil, fmt.Errorf("failed to initialize rate limiting: %w", err)
	}

	if err := deps.initHTTP(); err != nil {
		deps.abort()
		return nil, fmt.Errorf("failed to initialize http layer: %w", err)
	}
	return deps, nil
}

// initRepositories selects the revocation backend
func (d *Dependencies) initRepositories(ctx context.Context) error {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.AuthEvents = repos.AuthEvents
	d.TxManager = d.RepoFactory.GetTransactionManager()

	switch d.Config.Revocation.Backend {
	case config.BackendRedis:
		if d.Redis == nil {
			return fmt.Errorf("redis revocation backend selected without a redis client")
		}
		d.Revocations = redisstore.NewRevocationStore(d.Redis, d.Logger)
	case config.BackendPostgres:
		store := d.RepoFactory.Revocations()
		d.Revocations = store
		d.startWorker(func() { store.StartCleanupWorker(ctx, d.Config.Revocation.SweepInterval) })
	default:
		return fmt.Errorf("unsupported revocation backend %q", d.Config.Revocation.Backend)
	}

	d.Logger.Info("repositories initialized",
		zap.String("revocation_backend", d.Config.Revocation.Backend))
	return nil
}

func (d *Dependencies) initServices() error {
	tokens, err := token.NewManager(d.Config.Token)
	if err != nil {
		return fmt.Errorf("failed to create token manager: %w", err)
	}
	d.Tokens = tokens

	d.Audit = audit.NewAuditService(d.AuthEvents, d.Logger, audit.DefaultConfig())
	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	d.Sessions = authservice.NewService(
		d.Users,
		d.Revocations,
		d.TxManager,
		tokens,
		authservice.NewBcryptHasher(d.Config.Auth.BcryptCost),
		d.Audit,
		authservice.Config{RequireEmailVerification: d.Config.Auth.RequireEmailVerification},
		d.Logger,
	)
	return nil
}

// initRateLimiting selects the counter backend for login and refresh, and
// sets up the per-client token bucket used for the rest of the API.
func (d *Dependencies) initRateLimiting(ctx context.Context) error {
	cfg := d.Config.RateLimit

	var store ratelimit.Store
	switch cfg.Backend {
	case config.BackendMemory:
		memory := ratelimit.NewMemoryStore(d.Logger)
		store = memory
		d.startWorker(func() { memory.StartCleanupWorker(ctx, cfg.SweepInterval) })
	case config.BackendRedis:
		if d.Redis == nil {
			return fmt.Errorf("redis rate limit backend selected without a redis client")
		}
		store = ratelimit.NewRedisStore(d.Redis)
	case config.BackendPostgres:
		pg := ratelimit.NewPostgresStore(d.DB.DB, d.Logger)
		store = pg
		d.startWorker(func() { pg.StartCleanupWorker(ctx, cfg.SweepInterval) })
	default:
		return fmt.Errorf("unsupported rate limit backend %q", cfg.Backend)
	}

	throttle := ratelimit.NewThrottle(d.Logger)
	d.startWorker(func() { throttle.StartCleanupWorker(ctx, cfg.SweepInterval, cfg.APIWindow) })

	d.RateLimit = middleware.NewRateLimitMiddleware(ratelimit.NewLimiter(store, d.Logger), d.Audit, d.Logger)
	d.APIThrottle = middleware.NewRateLimitMiddleware(ratelimit.NewLimiter(throttle, d.Logger), d.Audit, d.Logger)

	d.Logger.Info("rate limiting initialized", zap.String("backend", cfg.Backend))
	return nil
}

func (d *Dependencies) initHTTP() error {
	proxies, err := config.ParseTrustedProxies(d.Config.Server.TrustedProxies)
	if err != nil {
		return err
	}
	d.RealIP = middleware.TrustedRealIP(proxies)

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Sessions, d.Logger)
	d.AuthHandler = auth.NewHandler(d.Sessions, auth.CookieConfig{
		Secure:        d.Config.IsProduction(),
		AccessMaxAge:  d.Tokens.AccessTTL(),
		RefreshMaxAge: d.Tokens.RefreshTTL(),
	}, d.Logger)
	d.UserHandler = handlers.NewUserHandler(d.Sessions, d.Logger)

	// A nil *redis.Client must not become a non-nil interface
	var redisClient redis.UniversalClient
	if d.Redis != nil {
		redisClient = d.Redis
	}
	d.HealthHandler = handlers.NewHealthHandler(d.DB.DB, redisClient, d.Logger)
	return nil
}

func (d *Dependencies) startWorker(run func()) {
	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		run()
	}()
}

// abort undoes a partial Build; the caller still owns the connections
func (d *Dependencies) abort() {
	d.stopWorkers()
	d.workers.Wait()
	d.stopAudit()
}

func (d *Dependencies) stopAudit() {
	if d.Audit == nil {
		return
	}
	if err := d.Audit.Stop(auditStopTimeout); err != nil {
		d.Logger.Warn("audit service did not stop cleanly", zap.Error(err))
	}
}

// Close stops background workers, flushes the audit queue and closes connections
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopWorkers != nil {
		d.stopWorkers()
		done := make(chan struct{})
		go func() {
			d.workers.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("background workers did not stop: %w", ctx.Err()))
		}
	}

	d.stopAudit()

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		} else {
			d.Logger.Info("redis connection closed")
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
