// Package prometheus exposes goSession client metrics to Prometheus.
//
// [Collector] implements prometheus.Collector over a client's
// MetricsSnapshot; [PrometheusExporter] wraps it in a private registry and
// serves it with promhttp. Counter names are prefixed gosession_*_total;
// latency histograms are gosession_*_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers mount the
//     Handler or call Register on their own registry.
//   - Mutate client state.
package prometheus
