package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/upb/tasker-auth/services/audit"
)

func TestSecurityHeaders(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("development", func(t *testing.T) {
		w := httptest.NewRecorder()
		SecurityHeaders(false)(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
		assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
		assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
		assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
	})

	t.Run("production adds HSTS", func(t *testing.T) {
		w := httptest.NewRecorder()
		SecurityHeaders(true)(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=")
	})
}

func TestClientInfo(t *testing.T) {
	var got audit.Client
	handler := ClientInfo(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = audit.ClientFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:5555"
	req.Header.Set("User-Agent", "Mozilla/5.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.5", got.IPAddress)
	assert.Equal(t, "Mozilla/5.0", got.UserAgent)
}
