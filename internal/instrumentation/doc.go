// Package instrumentation wires OpenTelemetry metrics to a Prometheus
// exporter. Metrics are exposed through promhttp on a dedicated listener so
// scraping never mixes with protocol traffic.
package instrumentation
