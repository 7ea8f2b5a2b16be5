package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/upb/tasker-auth/models"
	"github.com/upb/tasker-auth/services/ratelimit"
	"github.com/upb/tasker-auth/utils"
	"go.uber.org/zap"
)

// EventRecorder receives audit events
type EventRecorder interface {
	Record(ctx context.Context, event *models.AuthEvent)
}

// RateLimitMiddleware enforces per-fingerprint allowances
type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
	events  EventRecorder
	logger  *zap.Logger
}

// NewRateLimitMiddleware creates a new RateLimitMiddleware. events may be nil.
func NewRateLimitMiddleware(limiter *ratelimit.Limiter, events EventRecorder, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		events:  events,
		logger:  logger,
	}
}

// Limit returns middleware applying policy. Over-limit requests get 429 with
// body {"error": policy.Message} and never reach next. Counter store failures
// let the request through.
func (m *RateLimitMiddleware) Limit(policy ratelimit.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			fingerprint := ratelimit.Fingerprint(r)

			result, err := m.limiter.Allow(ctx, policy, fingerprint)
			if err != nil {
				m.logger.Error("rate limit check failed, allowing request",
					zap.String("request_id", GetRequestIDFromContext(ctx)),
					zap.String("class", string(policy.Class)),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			if result.Limit > 0 {
				setRateLimitHeaders(w, result)
			}

			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(ceilSeconds(result.RetryAfter)))
				if m.events != nil {
					m.events.Record(ctx, models.NewAuthEvent(models.ActionRateLimited, nil, "").WithReason(string(policy.Class)))
				}
				_ = utils.WriteTooManyRequests(w, policy.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, result *ratelimit.Result) {
	reset := 0
	if !result.ResetAt.IsZero() {
		reset = ceilSeconds(time.Until(result.ResetAt))
	}
	w.Header().Set("RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("RateLimit-Reset", strconv.Itoa(reset))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
