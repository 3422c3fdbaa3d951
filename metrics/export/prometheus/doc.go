// Package prometheus exposes warden engine metrics through client_golang.
//
// [Collector] implements prometheus.Collector over Engine.MetricsSnapshot and
// can be registered on any registry. [Exporter] wraps a private registry and
// serves it with promhttp. Counter names are warden_*_total; latency
// histograms are warden_*_latency_seconds.
//
// # What this package must NOT do
//
//   - Register on the global Prometheus registry.
//   - Mutate engine state.
package prometheus
