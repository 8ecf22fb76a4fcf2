package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package.
// A package-private key type means only this package can read or write
// the username value in a request context — a plain string key could be
// shadowed by any package that knows the literal.
type contextKey string

const usernameKey contextKey = "username"

// OptionalAuth extracts the caller's identity from the Authorization
// header when a valid bearer token is present, and continues regardless.
//
// This is the inbound token filter: an invalid or missing token does NOT
// produce a 401 here. The request simply proceeds unauthenticated, and
// whichever route requires authentication rejects it later (RequireAuth).
// Keeping the filter permissive means public routes and protected routes
// share one pipeline.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username, err := extractUsername(r, tokens); err == nil && username != "" {
				ctx := context.WithValue(r.Context(), usernameKey, username)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth is the authorization layer for protected routes: if
// OptionalAuth (or this middleware's own extraction) yields no valid
// identity, the chain stops with 401.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, ok := UsernameFromContext(r.Context())
			if !ok {
				// Not tagged by OptionalAuth — try the header directly so
				// RequireAuth also works standalone.
				var err error
				username, err = extractUsername(r, tokens)
				if err != nil || username == "" {
					w.Header().Set("Content-Type", "application/json")
					http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
					return
				}
			}

			ctx := context.WithValue(r.Context(), usernameKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UsernameFromContext retrieves the authenticated username from the
// request context. Returns ("", false) for anonymous requests.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok && username != ""
}

// extractUsername reads and validates the bearer token.
//
// The API is consumed by a separate frontend that keeps the JWT and
// sends it explicitly, so the token travels in the standard
// "Authorization: Bearer <jwt>" header rather than a cookie.
func extractUsername(r *http.Request, tokens *TokenService) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("auth: missing Authorization header")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("auth: Authorization header is not a bearer token")
	}

	return tokens.Validate(strings.TrimSpace(header[len(prefix):]))
}
