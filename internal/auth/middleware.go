package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// CookieName is the HttpOnly cookie that carries the token for browsers.
const CookieName = "token"

// contextKey keeps our context values out of reach of other packages.
type contextKey string

const userIDKey contextKey = "userID"

var errNoToken = errors.New("auth: no token")

// RequireAuth rejects requests without a valid token with 401 and stores the
// token's user ID in the request context otherwise.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   "unauthorized",
					"message": "valid authentication required",
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuth records the user ID when a valid token is present and lets
// every request through. Handlers check UserIDFromContext to tell anonymous
// callers apart.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, tokens); err == nil {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID returns a copy of ctx carrying an authenticated user ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user's ID, or ("", false) for
// anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// extractUserID takes the token from the cookie, falling back to an
// "Authorization: Bearer <jwt>" header for non-browser clients.
func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return tokens.Validate(cookie.Value)
	}

	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
		return tokens.Validate(strings.TrimSpace(token))
	}
	return "", errNoToken
}
