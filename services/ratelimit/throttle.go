package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle is a token-bucket Store for the general API allowance. A bucket
// holds limit tokens and refills limit tokens per window.
type Throttle struct {
	mu      sync.Mutex
	buckets map[string]*throttleEntry
	now     func() time.Time
	logger  *zap.Logger
}

// NewThrottle creates an empty Throttle
func NewThrottle(logger *zap.Logger) *Throttle {
	return &Throttle{
		buckets: make(map[string]*throttleEntry),
		now:     time.Now,
		logger:  logger,
	}
}

// Hit implements Store. Rejected hits do not consume a token.
func (t *Throttle) Hit(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	entry, ok := t.buckets[key]
	if !ok {
		every := rate.Every(window / time.Duration(limit))
		entry = &throttleEntry{limiter: rate.NewLimiter(every, limit)}
		t.buckets[key] = entry
	}
	entry.lastSeen = now

	reservation := entry.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return &Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    now.Add(delay),
			RetryAfter: delay,
		}, nil
	}

	remaining := int(entry.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	missing := float64(limit - remaining)
	refill := time.Duration(missing / float64(entry.limiter.Limit()) * float64(time.Second))

	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(refill),
	}, nil
}

// Sweep drops buckets idle for longer than idle
func (t *Throttle) Sweep(idle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-idle)
	removed := 0
	for key, entry := range t.buckets {
		if entry.lastSeen.Before(cutoff) {
			delete(t.buckets, key)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker drops idle buckets until ctx is done
func (t *Throttle) StartCleanupWorker(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := t.Sweep(idle); removed > 0 {
				t.logger.Debug("swept idle throttle buckets", zap.Int("removed", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}
