// Package otel bridges authfront metrics into OpenTelemetry observable
// instruments.
//
// [NewOTelExporter] registers one observable counter per authfront metric
// on the supplied meter; values are read from the engine snapshot inside
// the observation callback, so the bridge adds no overhead to hot paths.
//
// # What this package must NOT do
//
//   - Install a global MeterProvider — callers own SDK setup.
//   - Mutate engine state.
package otel
