// Package warden issues, verifies, rotates and revokes bearer credentials for
// a multi-service backend, enforces a single live session per bot, and
// throttles callers with a Redis fixed-window limiter.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Token lifecycle
//
//   - [Engine.IssueForLogin] mints an access/refresh pair for a subject that an
//     external service already authenticated and records the refresh session.
//   - [Engine.Refresh] accepts the expired access token plus the refresh token.
//     A still-valid access token is refused as too early. Within the refresh
//     window the session is rotated atomically; a broken refresh token falls
//     back to rebuilding the pair from the access claims. Past the window the
//     caller must log in again.
//   - [Engine.Logout] deletes the refresh session and blacklists the access
//     token id for one access lifetime.
//   - [Engine.IssueBotToken] issues an access-only token and invalidates every
//     earlier session of that bot in one Lua script.
//
// # Architecture boundaries
//
// warden is the public surface. It exposes [Engine], [Builder], [Config], and value types
// ([TokenPair], [BotToken], [RateDecision], [MetricsSnapshot]). Flow
// orchestration, Lua scripts, rate limit records and audit dispatch live under
// internal/ and in the jwt, session and snowflake packages.
//
// # What this package must NOT do
//
//   - Check user credentials, store users or render HTTP responses.
//   - Expose Redis clients or Lua scripts in its public API.
//   - Perform I/O outside of Engine methods. Build opens no connections.
//   - Log to stdout unless a logger is supplied through [Builder.WithLogger].
package warden
