// Package rate implements the fixed-window request limiter with temporary
// blocking used in front of every route.
//
// # Window semantics
//
// One Lua script per check loads a JSON record {count, windowExpiry,
// blockExpiry} (unix seconds), then:
//
//   - while blockExpiry > now the request is rejected and nothing is counted;
//   - when windowExpiry <= now the window restarts at now with count 0;
//   - the count is incremented; crossing the limit starts a block that lasts
//     one window.
//
// The clock is read in Go and passed to the script, so every replica and every
// test decides with the same notion of now.
//
// # Keys
//
//	rate_limit:user:<userID>:<route>
//	rate_limit:ip:<ip>:<route>
//	rate_limit:ipuser:<ip>:<userID>:<route>
//
// Missing identities use the placeholder "anonymous".
//
// # What this package must NOT do
//
//   - Decide fail-open versus fail-closed. Store errors are returned as-is.
//   - Be imported outside the warden module.
package rate
