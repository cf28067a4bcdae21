package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type contextKey string

const WorkspaceKey contextKey = "workspace"

// APIKeyAuth validates the API key and binds the request to the key's workspace.
// keys maps workspace id to its API key. Browsers cannot set headers on a
// WebSocket upgrade, so the key is also accepted as ?token=.
func APIKeyAuth(keys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := extractKey(r)
			if apiKey == "" {
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "missing API key")
				return
			}

			// constant-time, dan jangan berhenti di match pertama
			var workspace string
			for ws, key := range keys {
				if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
					workspace = ws
				}
			}
			if workspace == "" {
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid API key")
				return
			}

			noteWorkspace(r.Context(), workspace)
			ctx := context.WithValue(r.Context(), WorkspaceKey, workspace)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if k := r.Header.Get("X-API-Key"); k != "" {
		return strings.TrimSpace(k)
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// WorkspaceFromContext returns the authenticated workspace.
func WorkspaceFromContext(ctx context.Context) string {
	if ws, ok := ctx.Value(WorkspaceKey).(string); ok {
		return ws
	}
	return ""
}

// RequireWorkspace ensures the {workspace} URL param matches the authenticated one.
func RequireWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urlWS := chi.URLParam(r, "workspace")
		if err := ValidateWorkspaceID(urlWS); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if auth := WorkspaceFromContext(r.Context()); auth != "" && auth != urlWS {
			WriteError(w, http.StatusForbidden, CodeWorkspaceMismatch, "API key does not belong to this workspace")
			return
		}
		next.ServeHTTP(w, r)
	})
}
