// Package store runs Redis commands and Lua scripts on behalf of the session
// store, the bot guard and the rate limiter.
//
// # Design
//
// An [Executor] wraps a redis.Scripter. Every call runs under a bounded
// per-operation timeout derived from the caller's context, and every failure
// other than redis.Nil is classified as [ErrUnavailable]. Scripts are loaded
// via redis.NewScript so the first run uses EVALSHA and falls back to EVAL on
// NOSCRIPT.
//
// Timeouts surface as ErrUnavailable wrapping context.DeadlineExceeded. The
// outcome of a timed-out write is unknown; callers treat it as failed.
//
// # What this package must NOT do
//
//   - Interpret script results beyond the integer/array coercion helpers.
//   - Retry writes. A retried Lua mutation is not idempotent in general.
package store
