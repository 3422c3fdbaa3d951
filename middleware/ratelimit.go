package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/MrEthical07/warden"
)

// RateLimitConfig configures [RateLimit].
type RateLimitConfig struct {
	// Route names the bucket route. Defaults to the request path.
	Route func(r *http.Request) string
	// Identity builds the rate identity. Defaults to the Guard claims subject
	// when present plus [ClientIP].
	Identity func(r *http.Request) warden.Identity
	// Skip bypasses the limiter for matching requests.
	Skip func(r *http.Request) bool
	// SetHeaders adds X-RateLimit-* headers to every response.
	SetHeaders bool
}

// RateLimit counts each request through Engine.CheckRate. Blocked callers get
// 429 with Retry-After in whole seconds; a store outage under fail-closed
// policy gets 503. The client IP and route are attached to the request
// context for audit events.
func RateLimit(engine *warden.Engine, cfg RateLimitConfig) func(http.Handler) http.Handler {
	if engine == nil {
		panic("ratelimit middleware: engine is required")
	}
	if cfg.Route == nil {
		cfg.Route = func(r *http.Request) string { return r.URL.Path }
	}
	if cfg.Identity == nil {
		cfg.Identity = defaultIdentity
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			id := cfg.Identity(r)
			route := cfg.Route(r)
			ctx := warden.WithRoute(warden.WithClientIP(r.Context(), id.IP), route)

			decision, err := engine.CheckRate(ctx, id, route)
			if cfg.SetHeaders {
				setRateHeaders(w, decision)
			}
			if err != nil {
				var rl *warden.RateLimitedError
				if errors.As(err, &rl) {
					w.Header().Set("Retry-After", strconv.FormatInt(retrySeconds(rl), 10))
				}
				writeStatus(w, warden.StatusCode(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func defaultIdentity(r *http.Request) warden.Identity {
	id := warden.Identity{IP: ClientIP(r)}
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		id.UserID = claims.RegisteredClaims.Subject
	}
	return id
}

func retrySeconds(rl *warden.RateLimitedError) int64 {
	secs := int64(rl.RetryAfter.Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

func setRateHeaders(w http.ResponseWriter, d warden.RateDecision) {
	if d.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, d.Remaining)))
	if !d.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}
