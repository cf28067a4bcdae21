package middleware

import (
	"encoding/json"
	"net/http"
)

// Error codes used by the HTTP layer itself.
const (
	CodeUnauthorized      = "unauthorized"
	CodeWorkspaceMismatch = "workspace_mismatch"
	CodeRateLimited       = "rate_limited"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg, Code: code})
}
