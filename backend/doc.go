// Package backend implements the auth-service adapter consumed by the
// authfront orchestrator. Client talks to a hosted GoTrue-style REST
// backend; Provider adds an optional direct-OIDC mode where the authorize
// URL and code exchange run against the identity provider itself and the
// verified id_token is traded to the backend for a session.
//
// The adapter never retries a failed call and never re-words a backend
// message: upstream text carries actionable detail (rate limits, lockouts)
// that the UI is expected to surface verbatim.
package backend
