package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey string

const (
	UserIDKey       contextKey = "user_id"
	SessionTokenKey contextKey = "session_token"
)

// publicPaths need no operator session: machine ingestion plus the
// operational endpoints.
var publicPaths = map[string]bool{
	"/report_error": true,
	"/health":       true,
	"/metrics":      true,
}

// SessionAuth resolves the operator session token from the Authorization
// header to a user id. Token issuance lives in the external auth system;
// here a token either maps to an identity or the request is rejected.
func SessionAuth(tokens map[string]int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				http.Error(w, "missing Authorization header", http.StatusUnauthorized)
				return
			}

			// Support both "Bearer <token>" and "<token>" formats
			token := strings.TrimPrefix(auth, "Bearer ")
			token = strings.TrimSpace(token)
			if token == "" {
				http.Error(w, "invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			// Constant-time comparison to prevent timing attacks
			valid := false
			var userID int64
			for t, uid := range tokens {
				if subtle.ConstantTimeCompare([]byte(token), []byte(t)) == 1 {
					valid = true
					userID = uid
					break
				}
			}
			if !valid {
				http.Error(w, "invalid session", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			ctx = context.WithValue(ctx, SessionTokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext extracts the authenticated user id; 0 means no session.
func UserIDFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(UserIDKey).(int64); ok {
		return id
	}
	return 0
}
