// Package session provides the Redis-backed session records that make a
// refresh token usable, the access-token blacklist and the bot single-session
// guard.
//
// # Key layout
//
//	SESSION:<clientKind>:<subject>:<tokenId>  ->  {"uid":"<subject>"}   TTL = refresh lifetime
//	bl:access:<jti>                           ->  "1"                   TTL = access lifetime
//
// Existence of a session key is the sole authority for "this refresh token is
// still usable". Deleting the key revokes the token regardless of its
// cryptographic validity.
//
// # Atomicity
//
// [Store.Rotate] and [BotGuard.Replace] each run as one Lua script, so no
// caller can observe the old and new session both present or both absent
// half-way through. Scripts address keys discovered at run time (SCAN) and are
// therefore not Redis Cluster safe.
//
// # What this package must NOT do
//
//   - Import warden or jwt (no upward imports).
//   - Interpret token contents or make authorization decisions.
package session
