// Package prometheus exposes goSession engine metrics through
// github.com/prometheus/client_golang.
//
// Register a [Collector] on an existing registry, or mount [Collector.Handler]
// at /metrics for a standalone endpoint. Metric names come from internaldefs.
package prometheus
