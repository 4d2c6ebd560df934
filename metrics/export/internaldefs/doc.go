// Package internaldefs holds the metric names, help strings and bucket
// helpers that the Prometheus and OTel exporters share, so both publish the
// same series for a client.
package internaldefs
