package test

import (
	"context"
	"net/http"
	"testing"

	"github.com/MrEthical07/warden"
	"github.com/MrEthical07/warden/middleware"
	"github.com/MrEthical07/warden/snowflake"
)

// This test intentionally guards public API compile-compat for consumers.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = warden.New
	_ = warden.DefaultConfig
	_ = warden.LoadConfigFromEnv
	_ = warden.StatusCode

	var _ *warden.Engine
	var _ warden.Config
	var _ warden.Subject
	var _ warden.TokenPair
	var _ warden.BotToken
	var _ warden.Identity
	var _ warden.RateDecision
	var _ warden.AccessClaims
	var _ warden.AuditSink
	var _ warden.MetricsSnapshot

	var _ error = warden.ErrUnauthorized
	var _ error = warden.ErrForbidden
	var _ error = warden.ErrSessionNotFound
	var _ error = warden.ErrTokenInvalid
	var _ error = warden.ErrRefreshTooEarly
	var _ error = warden.ErrRefreshWindowExceeded
	var _ error = warden.ErrAccessTokenRequired
	var _ error = warden.ErrAccessRevoked
	var _ error = warden.ErrRateLimited
	var _ error = warden.ErrStoreUnavailable

	var _ func(*warden.Engine) func(http.Handler) http.Handler = middleware.Guard
	var _ func(*warden.Engine, middleware.RateLimitConfig) func(http.Handler) http.Handler = middleware.RateLimit
	var _ func(...string) func(http.Handler) http.Handler = middleware.RequireRoles

	var _ func(*warden.Engine, context.Context, warden.Subject) (*warden.TokenPair, error) = (*warden.Engine).IssueForLogin
	var _ func(*warden.Engine, context.Context, string, string) (*warden.TokenPair, error) = (*warden.Engine).Refresh
	var _ func(*warden.Engine, context.Context, string, string) error = (*warden.Engine).Logout
	var _ func(*warden.Engine, context.Context, string, []string) (*warden.BotToken, error) = (*warden.Engine).IssueBotToken
	var _ func(*warden.Engine, context.Context, string) (*warden.AccessClaims, error) = (*warden.Engine).ValidateAccess
	var _ func(*warden.Engine, context.Context, warden.Identity, string) (warden.RateDecision, error) = (*warden.Engine).CheckRate
	var _ func(*warden.Engine) (snowflake.ID, error) = (*warden.Engine).NextID
}
