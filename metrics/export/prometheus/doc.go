// Package prometheus renders captivault counters and histograms in Prometheus
// text exposition format without depending on the Prometheus client library.
//
// [NewPrometheusExporter] reads [captivault.Engine.MetricsSnapshot] on every
// render; nothing is cached between scrapes.
//
// # What this package must NOT do
//
//   - Own an HTTP server — callers mount [PrometheusExporter.Handler].
//   - Mutate engine state.
package prometheus
