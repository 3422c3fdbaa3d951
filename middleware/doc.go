// Package middleware exposes net/http adapters over warden.Engine.
//
// # Middleware
//
//   - [Guard]: bearer access token validation, claims injected into the request context.
//   - [RequireRoles] / [RequireClient]: authorization on top of Guard's claims.
//   - [RateLimit]: per-route throttling through Engine.CheckRate with Retry-After.
//   - [ClientIP]: proxy-aware caller address resolution.
//
// Status codes come from warden.StatusCode, so a handler chain answers the
// same way the engine classifies the failure.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond the claims Engine returned.
package middleware
