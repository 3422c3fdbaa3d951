// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunRefresh, RunLogin, RunLogout, RunIssueBotToken,
// RunValidateAccess, RunCheckRate) accepts a typed dependency struct and
// returns a result carrying either the payload or a classified failure kind.
// The root package maps failure kinds to its public errors, metrics and audit
// events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the token signer, session repository,
// bot guard and rate limiter through small interfaces. They do NOT own any of
// these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import warden (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
