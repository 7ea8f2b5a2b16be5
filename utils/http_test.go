package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, true, response["success"])
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, WriteJSON(w, http.StatusNoContent, nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestWriteOK(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteOK(w, map[string]string{"status": "healthy"}))

	var response SuccessResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response.Data.(map[string]interface{})["status"])
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name        string
		write       func(w http.ResponseWriter) error
		wantStatus  int
		wantError   string
		wantMessage string
	}{
		{
			name:        "bad request",
			write:       func(w http.ResponseWriter) error { return WriteBadRequest(w, "Email and password are required", nil) },
			wantStatus:  http.StatusBadRequest,
			wantError:   "bad_request",
			wantMessage: "Email and password are required",
		},
		{
			name:        "unauthorized default message",
			write:       func(w http.ResponseWriter) error { return WriteUnauthorized(w, "") },
			wantStatus:  http.StatusUnauthorized,
			wantError:   "unauthorized",
			wantMessage: "Unauthorized",
		},
		{
			name:        "unauthorized custom message",
			write:       func(w http.ResponseWriter) error { return WriteUnauthorized(w, "Token has been revoked") },
			wantStatus:  http.StatusUnauthorized,
			wantError:   "unauthorized",
			wantMessage: "Token has been revoked",
		},
		{
			name:        "forbidden",
			write:       func(w http.ResponseWriter) error { return WriteForbidden(w, "Invalid token") },
			wantStatus:  http.StatusForbidden,
			wantError:   "forbidden",
			wantMessage: "Invalid token",
		},
		{
			name:        "not found default message",
			write:       func(w http.ResponseWriter) error { return WriteNotFound(w, "") },
			wantStatus:  http.StatusNotFound,
			wantError:   "not_found",
			wantMessage: "Resource not found",
		},
		{
			name:        "method not allowed",
			write:       WriteMethodNotAllowed,
			wantStatus:  http.StatusMethodNotAllowed,
			wantError:   "method_not_allowed",
			wantMessage: "Method not allowed",
		},
		{
			name:        "conflict",
			write:       func(w http.ResponseWriter) error { return WriteConflict(w, "User already exists", nil) },
			wantStatus:  http.StatusConflict,
			wantError:   "conflict",
			wantMessage: "User already exists",
		},
		{
			name:        "internal default message",
			write:       func(w http.ResponseWriter) error { return WriteInternalServerError(w, "") },
			wantStatus:  http.StatusInternalServerError,
			wantError:   "internal_error",
			wantMessage: "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, tt.write(w))

			assert.Equal(t, tt.wantStatus, w.Code)

			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.wantError, response.Error)
			assert.Equal(t, tt.wantMessage, response.Message)
		})
	}
}

func TestWriteTooManyRequests(t *testing.T) {
	t.Run("body carries only the message", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, WriteTooManyRequests(w, "Too many login attempts, please try again later."))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.JSONEq(t, `{"error":"Too many login attempts, please try again later."}`, w.Body.String())
	})

	t.Run("default message", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, WriteTooManyRequests(w, ""))

		assert.JSONEq(t, `{"error":"Too many requests, please try again later."}`, w.Body.String())
	})
}
