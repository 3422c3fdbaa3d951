package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/warden"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the access claims stored by [Guard].
func ClaimsFromContext(ctx context.Context) (*warden.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*warden.AccessClaims)
	return claims, ok
}

// Guard validates the bearer access token on every request. Missing or
// invalid tokens get 401; a store outage gets 503.
func Guard(engine *warden.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeStatus(w, http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeStatus(w, http.StatusUnauthorized)
				return
			}

			claims, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				writeStatus(w, statusFor(err))
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(r *http.Request) (string, bool) {
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// statusFor never leaks a 500 for an auth failure: anything the engine did
// not classify is treated as unauthorized.
func statusFor(err error) int {
	status := warden.StatusCode(err)
	if status == http.StatusInternalServerError {
		return http.StatusUnauthorized
	}
	return status
}

func writeStatus(w http.ResponseWriter, status int) {
	http.Error(w, strings.ToLower(http.StatusText(status)), status)
}
