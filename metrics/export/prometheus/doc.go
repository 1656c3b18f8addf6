// Package prometheus provides Prometheus collectors for authfront metrics.
//
// [NewPrometheusExporter] accepts an [authfront.Engine] and exposes an
// [http.Handler] that renders all authfront counters in Prometheus text
// exposition format. Counter names are prefixed authfront_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
