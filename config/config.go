package config

import (
	"context"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted by the revocation and rate-limit settings
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Database drivers registered with database/sql
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

const (
	devAccessSecret  = "dev-access-secret-change-me"
	devRefreshSecret = "dev-refresh-secret-change-me"

	minProductionSecretLength = 32
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Token         TokenConfig
	Auth          AuthConfig
	Revocation    RevocationConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	// TrustedProxies lists peers (IPs or CIDRs) whose forwarding headers are believed
	TrustedProxies []string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	Driver           string // "postgres" (lib/pq) or "pgx"
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	AutoMigrate      bool
}

// RedisConfig holds Redis connection settings. Addr empty means Redis is not used.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TokenConfig holds signing material and lifetimes for access and refresh tokens
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
}

// AuthConfig holds credential handling settings
type AuthConfig struct {
	BcryptCost               int
	RequireEmailVerification bool
}

// RevocationConfig selects where revoked access tokens are kept
type RevocationConfig struct {
	Backend       string
	SweepInterval time.Duration
}

// RateLimitConfig holds per-endpoint-class limits
type RateLimitConfig struct {
	Backend       string
	LoginLimit    int
	LoginWindow   time.Duration
	RefreshLimit  int
	RefreshWindow time.Duration
	APILimit      int
	APIWindow     time.Duration
	SweepInterval time.Duration
}

// CORSConfig holds allowed browser origins
type CORSConfig struct {
	AllowedOrigins []string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			TrustedProxies:  getEnvAsList("TRUSTED_PROXIES", nil),
		},
		Database: loadDatabaseConfig(),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Token: TokenConfig{
			AccessSecret:  getEnv("ACCESS_TOKEN_SECRET", ""),
			RefreshSecret: getEnv("REFRESH_TOKEN_SECRET", ""),
			AccessTTL:     getEnvAsDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
			RefreshTTL:    getEnvAsDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
			Issuer:        getEnv("TOKEN_ISSUER", "tasker-app"),
			Audience:      getEnv("TOKEN_AUDIENCE", "tasker-users"),
		},
		Auth: AuthConfig{
			BcryptCost:               getEnvAsInt("BCRYPT_COST", 10),
			RequireEmailVerification: getEnvAsBool("REQUIRE_EMAIL_VERIFICATION", false),
		},
		Revocation: RevocationConfig{
			Backend:       strings.ToLower(getEnv("REVOCATION_BACKEND", BackendPostgres)),
			SweepInterval: getEnvAsDuration("REVOCATION_SWEEP_INTERVAL", 10*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Backend:       strings.ToLower(getEnv("RATE_LIMIT_BACKEND", BackendMemory)),
			LoginLimit:    getEnvAsInt("RATE_LIMIT_LOGIN_MAX", 5),
			LoginWindow:   getEnvAsDuration("RATE_LIMIT_LOGIN_WINDOW", 15*time.Minute),
			RefreshLimit:  getEnvAsInt("RATE_LIMIT_REFRESH_MAX", 3),
			RefreshWindow: getEnvAsDuration("RATE_LIMIT_REFRESH_WINDOW", 15*time.Minute),
			APILimit:      getEnvAsInt("RATE_LIMIT_API_MAX", 100),
			APIWindow:     getEnvAsDuration("RATE_LIMIT_API_WINDOW", 15*time.Minute),
			SweepInterval: getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", 15*time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Local runs get throwaway secrets; production must set both explicitly
	if !cfg.IsProduction() {
		if cfg.Token.AccessSecret == "" {
			cfg.Token.AccessSecret = devAccessSecret
		}
		if cfg.Token.RefreshSecret == "" {
			cfg.Token.RefreshSecret = devRefreshSecret
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}
	if c.Database.Driver != DriverPQ && c.Database.Driver != DriverPGX {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if err := c.Token.validate(c.IsProduction()); err != nil {
		return err
	}

	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 4 and 31")
	}

	switch c.Revocation.Backend {
	case BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unsupported revocation backend %q", c.Revocation.Backend)
	}

	switch c.RateLimit.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unsupported rate limit backend %q", c.RateLimit.Backend)
	}
	if c.RateLimit.LoginLimit <= 0 || c.RateLimit.RefreshLimit <= 0 || c.RateLimit.APILimit <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.RateLimit.RefreshLimit > c.RateLimit.LoginLimit {
		return fmt.Errorf("refresh rate limit must not exceed the login limit")
	}
	if c.RateLimit.LoginWindow <= 0 || c.RateLimit.RefreshWindow <= 0 || c.RateLimit.APIWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}

	if c.RateLimit.SweepInterval <= 0 || c.Revocation.SweepInterval <= 0 {
		return fmt.Errorf("sweep intervals must be positive")
	}

	if _, err := ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return err
	}

	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when a redis backend is selected")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

func (t *TokenConfig) validate(production bool) error {
	if t.AccessSecret == "" || t.RefreshSecret == "" {
		return fmt.Errorf("access and refresh token secrets are required")
	}
	if t.AccessSecret == t.RefreshSecret {
		return fmt.Errorf("access and refresh token secrets must differ")
	}
	if production && (len(t.AccessSecret) < minProductionSecretLength || len(t.RefreshSecret) < minProductionSecretLength) {
		return fmt.Errorf("token secrets must be at least %d bytes in production", minProductionSecretLength)
	}
	if t.AccessTTL <= 0 || t.RefreshTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if t.Issuer == "" || t.Audience == "" {
		return fmt.Errorf("token issuer and audience are required")
	}
	return nil
}

// ParseTrustedProxies turns IPs and CIDRs into prefixes. A bare IP is a single-address prefix.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// UsesRedis reports whether any component is backed by Redis
func (c *Config) UsesRedis() bool {
	return c.Revocation.Backend == BackendRedis || c.RateLimit.Backend == BackendRedis
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("driver=%s host=%s port=%s database=%s", c.Driver, host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("driver=%s host=%s port=%d database=%s", c.Driver, c.Host, c.Port, c.Database)
}

func loadDatabaseConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverPQ)),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", true),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		cfg.ConnectionString = dbURL
		return cfg
	}
	cfg.Host = getEnv("DB_HOST", "localhost")
	cfg.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.User = getEnv("DB_USER", "tasker")
	cfg.Password = getEnv("DB_PASSWORD", "tasker")
	cfg.Database = getEnv("DB_NAME", "tasker")
	cfg.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 5000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 5000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
