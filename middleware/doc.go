// Package middleware exposes HTTP middleware adapting authfront.Engine
// route decisions into standard net/http handler chains.
//
// # Guards
//
//   - [Guard] — classifies the request path and executes the engine's
//     navigation decision (allow, redirect, or sign-out-and-redirect).
//
// The guard carries the tab identifier from the X-Tab-Id header and the
// client address into the request context so downstream engine calls are
// scoped correctly.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement navigation policy itself — all decisions are delegated to
// Engine.DecideRoute.
//
// # What this package must NOT do
//
//   - Classify routes with its own rules (delegates to Engine).
//   - Touch flag storage (Engine handles I/O).
//   - Make redirect decisions beyond executing Engine.DecideRoute output.
package middleware
