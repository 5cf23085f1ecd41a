// Package prometheus renders engine metrics in the Prometheus text exposition format.
//
// [PrometheusExporter.Handler] is meant to be mounted on a /metrics route. Nothing is registered
// in a global registry.
package prometheus
