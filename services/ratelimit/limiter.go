// Package ratelimit bounds requests per client fingerprint and endpoint class.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Class identifies an endpoint class. Each class counts separately.
type Class string

const (
	ClassLogin   Class = "login"
	ClassRefresh Class = "refresh"
	ClassAPI     Class = "api"
)

const (
	unknownIP    = "unknown-ip"
	unknownAgent = "unknown-agent"
)

// Policy is the allowance for one class
type Policy struct {
	Class   Class
	Limit   int
	Window  time.Duration
	Message string
}

// Result describes the quota after a hit
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Store counts hits per key. A hit that would exceed limit is rejected
// without being counted.
type Store interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Limiter applies a Policy against a Store
type Limiter struct {
	store  Store
	logger *zap.Logger
}

// NewLimiter creates a Limiter
func NewLimiter(store Store, logger *zap.Logger) *Limiter {
	return &Limiter{
		store:  store,
		logger: logger,
	}
}

// Allow records one hit for fingerprint under policy
func (l *Limiter) Allow(ctx context.Context, policy Policy, fingerprint string) (*Result, error) {
	if policy.Limit <= 0 {
		return &Result{Allowed: true}, nil
	}

	result, err := l.store.Hit(ctx, scopeKey(policy.Class, fingerprint), policy.Limit, policy.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s rate limit: %w", policy.Class, err)
	}

	if !result.Allowed {
		l.logger.Warn("rate limit exceeded",
			zap.String("class", string(policy.Class)),
			zap.Int("limit", policy.Limit),
			zap.Duration("retry_after", result.RetryAfter))
	}
	return result, nil
}

func scopeKey(class Class, fingerprint string) string {
	return "ratelimit:" + string(class) + ":" + fingerprint
}

// Fingerprint identifies a client by network address and user agent.
// Missing parts become sentinels so such clients still get a bucket.
func Fingerprint(r *http.Request) string {
	ip := ClientIP(r.RemoteAddr)
	if ip == "" {
		ip = unknownIP
	}
	agent := strings.TrimSpace(r.UserAgent())
	if agent == "" {
		agent = unknownAgent
	}
	return ip + "|" + agent
}

// ClientIP strips the port from a remote address
func ClientIP(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// windowResult builds a Result for a fixed window holding count hits
func windowResult(allowed bool, limit, count int, resetAt, now time.Time) *Result {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	result := &Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !allowed {
		result.RetryAfter = resetAt.Sub(now)
		if result.RetryAfter < 0 {
			result.RetryAfter = 0
		}
	}
	return result
}
