package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type memoryWindow struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps fixed-window counters in process memory.
// A window opens on the first hit for a key and lasts one window length.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
	logger  *zap.Logger
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
		logger:  logger,
	}
}

// Hit implements Store
func (s *MemoryStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		s.windows[key] = w
	}

	if w.count >= limit {
		return windowResult(false, limit, w.count, w.resetAt, now), nil
	}

	w.count++
	return windowResult(true, limit, w.count, w.resetAt, now), nil
}

// Sweep drops windows that have elapsed
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker sweeps elapsed windows until ctx is done
func (s *MemoryStore) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started in-memory rate limit sweeper", zap.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Debug("swept rate limit windows", zap.Int("removed", removed))
			}
		case <-ctx.Done():
			s.logger.Info("stopping in-memory rate limit sweeper")
			return
		}
	}
}
