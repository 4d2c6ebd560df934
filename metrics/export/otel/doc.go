// Package otel reports goSession client metrics through an OpenTelemetry
// Meter supplied by the caller.
//
// Counters become Int64ObservableCounters. Each latency histogram becomes a
// "_bucket" gauge with one point per le attribute plus a "_count" gauge, so
// the shape matches the Prometheus exporter. Clients also report whether a
// refresh is in flight and how many requests wait on it.
//
// One callback reads the snapshot per collection; the exporter never mutates
// the client.
package otel
