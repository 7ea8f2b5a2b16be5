package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/tasker-auth/repositories/redisstore"
	"github.com/upb/tasker-auth/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const readinessTimeout = 3 * time.Second

// Dependency check states
const (
	CheckUp   = "up"
	CheckDown = "down"
)

// Check names reported by /ready
const (
	CheckUserStore      = "user_store"
	CheckRevocationList = "revocation_list"
)

// LivenessResponse is the /health body
type LivenessResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

// DependencyCheck is the outcome of one readiness check. Error details are
// logged, never returned.
type DependencyCheck struct {
	Name      string `json:"name"`
	Backend   string `json:"backend"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latencyMs"`
}

// ReadinessResponse is the /ready body
type ReadinessResponse struct {
	Ready     bool              `json:"ready"`
	CheckedAt time.Time         `json:"checkedAt"`
	Checks    []DependencyCheck `json:"checks"`
}

// HealthHandler serves liveness and readiness
type HealthHandler struct {
	db      *sql.DB
	redis   redis.UniversalClient
	logger  *zap.Logger
	started time.Time
	now     func() time.Time
}

// NewHealthHandler creates a HealthHandler. redisClient is nil when the
// revocation list is kept in memory.
func NewHealthHandler(db *sql.DB, redisClient redis.UniversalClient, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		redis:   redisClient,
		logger:  logger,
		started: time.Now(),
		now:     time.Now,
	}
}

// HandleHealth handles GET /health. It only reports that the process serves requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, LivenessResponse{
		Status:        "alive",
		UptimeSeconds: int64(h.now().Sub(h.started) / time.Second),
	})
}

// HandleReadiness handles GET /ready. The user store and the revocation list
// are checked concurrently; any check down answers 503.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := []DependencyCheck{
		{Name: CheckUserStore, Backend: "postgres"},
		{Name: CheckRevocationList, Backend: h.revocationBackend()},
	}
	pings := []func(context.Context) error{h.pingUserStore, h.pingRevocationList}

	// each goroutine writes only its own slot
	var g errgroup.Group
	for i := range checks {
		g.Go(func() error {
			start := h.now()
			err := pings[i](ctx)
			checks[i].LatencyMs = h.now().Sub(start).Milliseconds()
			if err != nil {
				h.logger.Warn("readiness check failed",
					zap.String("check", checks[i].Name),
					zap.String("backend", checks[i].Backend),
					zap.Error(err))
				checks[i].Status = CheckDown
				return nil
			}
			checks[i].Status = CheckUp
			return nil
		})
	}
	_ = g.Wait()

	ready := true
	for _, c := range checks {
		if c.Status != CheckUp {
			ready = false
		}
	}

	httpStatus := http.StatusOK
	if !ready {
		httpStatus = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Ready:     ready,
		CheckedAt: h.now().UTC(),
		Checks:    checks,
	}
	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) revocationBackend() string {
	if h.redis == nil {
		return "memory"
	}
	return "redis"
}

func (h *HealthHandler) pingUserStore(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var one int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// pingRevocationList is a no-op for the in-memory list
func (h *HealthHandler) pingRevocationList(ctx context.Context) error {
	if h.redis == nil {
		return nil
	}
	return redisstore.HealthCheck(ctx, h.redis)
}
