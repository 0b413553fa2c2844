package middleware

import (
	"encoding/json"
	"net/http"
)

// Error codes written by this package. Handlers use the same body shape.
const (
	CodeUnauthorized = "unauthorized"
	CodeInvalidToken = "invalid_token"
	CodeForbidden    = "forbidden"
	CodeRateLimited  = "rate_limited"
	CodeInternal     = "internal_error"
)

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
