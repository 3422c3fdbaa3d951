// Package metrics holds the engine's in-process counters and latency
// histograms.
//
// Each counter lives in its own cache-line-padded slot and is bumped with a
// single atomic add. Latency histograms have eight fixed buckets, 5ms up to
// 500ms plus an overflow bucket, and are only allocated when enabled. Nothing
// here allocates on the write path.
//
// Exporters under metrics/export read [Snapshot] values; this package does no
// I/O and keeps no global registry.
package metrics
