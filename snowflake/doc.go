// Package snowflake generates 64-bit, time-ordered unique identifiers.
//
// # Layout
//
//	[1 unused][41 bits ms since epoch][10 bits worker id][12 bits sequence]
//
// The default epoch is 2025-01-11T00:00:00Z (1736572800000 ms). Worker ids range
// over [0, 1023]. Up to 4096 ids can be produced per worker per millisecond.
//
// # Sequence overflow
//
// When the 4096 sequence values of a millisecond are exhausted, Generate blocks
// until the clock reaches the next millisecond. A clock that moves backwards
// produces [ErrClockMovedBackwards]; timestamps are never reused.
//
// # What this package must NOT do
//
//   - Perform I/O or coordinate worker ids across processes.
//   - Share sequence state between Generator instances. Uniqueness holds only
//     when a single Generator per worker id runs in a process.
package snowflake
