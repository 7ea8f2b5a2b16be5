package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/upb/tasker-auth/services"
	"github.com/upb/tasker-auth/services/token"
	"github.com/upb/tasker-auth/utils"
	"go.uber.org/zap"
)

// Authenticator resolves an access token to its claims
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*token.Claims, error)
}

// AuthMiddleware guards protected routes
type AuthMiddleware struct {
	authenticator Authenticator
	logger        *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(authenticator Authenticator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		logger:        logger,
	}
}

// RequireAuth rejects requests without a valid, unrevoked bearer token.
// Missing or revoked tokens get 401, tokens that fail verification get 403,
// and a failed revocation lookup gets 500.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		accessToken := ExtractBearerToken(r)
		if accessToken == "" {
			m.logger.Debug("missing bearer token",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path))
			_ = utils.WriteUnauthorized(w, services.ErrUnauthorized.Message)
			return
		}

		claims, err := m.authenticator.Authenticate(ctx, accessToken)
		if err != nil {
			m.reject(w, requestID, err)
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			m.reject(w, requestID, services.WrapInvalidToken(services.ErrInvalidToken, err))
			return
		}

		ctx = WithClaims(ctx, claims)
		ctx = WithUserID(ctx, userID)
		ctx = WithAccessToken(ctx, accessToken)

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("user_id", userID.String()))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, requestID string, err error) {
	switch {
	case services.IsTokenRevokedError(err), services.IsUnauthorizedError(err):
		m.logger.Info("rejected token",
			zap.String("request_id", requestID),
			zap.String("reason", string(services.GetErrorType(err))))
		_ = utils.WriteUnauthorized(w, services.GetErrorMessage(err))

	case services.IsInvalidTokenError(err):
		m.logger.Info("token validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteForbidden(w, services.ErrInvalidToken.Message)

	default:
		m.logger.Error("authentication failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "An internal error occurred")
	}
}

// ExtractBearerToken extracts the Bearer token from the Authorization header
func ExtractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
