package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/upb/tasker-auth/middleware"
	"github.com/upb/tasker-auth/models"
	"github.com/upb/tasker-auth/utils"
	"go.uber.org/zap"
)

// UserLookup loads the redacted view of an identity
type UserLookup interface {
	CurrentUser(ctx context.Context, userID uuid.UUID) (*models.UserView, error)
}

// CurrentUserResponse is the response body for GET /api/auth/me
type CurrentUserResponse struct {
	Success bool            `json:"success"`
	User    models.UserView `json:"user"`
}

// UserHandler serves the authenticated identity
type UserHandler struct {
	users  UserLookup
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users UserLookup, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger,
	}
}

// HandleMe handles GET /api/auth/me. Must run behind RequireAuth.
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "Unauthorized")
		return
	}

	user, err := h.users.CurrentUser(r.Context(), userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, CurrentUserResponse{Success: true, User: *user})
}
