// Package audit implements async event dispatching for token lifecycle
// operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog,
//     Redis Pub/Sub, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full
//     semantics.
//   - [Event]: structured audit record with timestamp, type, subject, client
//     kind, token id, IP and metadata.
//   - [Envelope]: the `{id, event, timestamp, payload}` shape published on
//     the `warden.events` channel, keyed by a ULID.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import warden or any sibling internal package.
//   - Perform network I/O beyond what a Sink does.
package audit
