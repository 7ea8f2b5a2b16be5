package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/upb/tasker-auth/services/token"
)

// Context key type to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for verified access token claims
	ClaimsKey contextKey = "claims"

	// UserIDKey is the context key for the authenticated user ID
	UserIDKey contextKey = "user_id"

	// AccessTokenKey is the context key for the raw bearer token
	AccessTokenKey contextKey = "access_token"
)

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetClaimsFromContext retrieves verified claims from context
func GetClaimsFromContext(ctx context.Context) *token.Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*token.Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds verified claims to the context
func WithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetUserIDFromContext retrieves the user ID from context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// WithUserID adds a user ID to the context
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetAccessTokenFromContext returns the bearer token the request was authenticated with
func GetAccessTokenFromContext(ctx context.Context) string {
	accessToken, _ := ctx.Value(AccessTokenKey).(string)
	return accessToken
}

// WithAccessToken adds the raw bearer token to the context
func WithAccessToken(ctx context.Context, accessToken string) context.Context {
	return context.WithValue(ctx, AccessTokenKey, accessToken)
}
