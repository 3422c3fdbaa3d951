// Package internal groups the private building blocks of warden.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function flow orchestrators for every Engine operation
//   - metrics: lock-free counters and latency histograms
//   - rate: Redis-backed fixed-window rate limiting
//   - store: atomic script execution and store error classification
//
// # What this package must NOT do
//
//   - Export types that appear in the public warden API.
//   - Be imported by any package outside the warden module.
package internal
