package middleware

import (
	"net/http"

	"github.com/MrEthical07/warden"
)

// RequireRoles admits requests whose claims carry at least one of roles. It
// must run after [Guard]; without claims the request is 401.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeStatus(w, http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if claims.Roles.Has(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeStatus(w, http.StatusForbidden)
		})
	}
}

// RequireClient restricts a route to user or bot tokens.
func RequireClient(kind warden.ClientKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeStatus(w, http.StatusUnauthorized)
				return
			}
			if claims.Client != kind {
				writeStatus(w, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
