package middleware

import (
	"net/http"

	"github.com/upb/tasker-auth/services/audit"
	"github.com/upb/tasker-auth/services/ratelimit"
)

// ClientInfo records the caller's request id, address and user agent for the audit trail.
// Mount it after chi's RequestID and TrustedRealIP.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithClient(r.Context(), audit.Client{
			RequestID: GetRequestIDFromContext(r.Context()),
			IPAddress: ratelimit.ClientIP(r.RemoteAddr),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
