package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// authenticate verifies the static admin token from the Authorization header.
// Supports "Bearer <token>" or a raw token, plus the X-Admin-Token header.
// An empty configured token disables authentication entirely.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.AdminToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			writeAuthError(w, http.StatusUnauthorized, "missing token", "provide Authorization header with Bearer token or X-Admin-Token header")
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.AdminToken)) != 1 {
			slog.Warn("invalid admin token attempt", "token_prefix", maskToken(token), "remote_addr", r.RemoteAddr)
			writeAuthError(w, http.StatusUnauthorized, "invalid token", "the provided admin token is not valid")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractToken extracts the admin token from request headers
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		return authHeader
	}

	return r.Header.Get("X-Admin-Token")
}

// maskToken returns first 8 chars of the token for safe logging
func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:8] + "..."
}

// AuthError represents an authentication error response
type AuthError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeAuthError writes JSON error response
func writeAuthError(w http.ResponseWriter, status int, error, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(AuthError{
		Error:   error,
		Message: message,
	})
}
