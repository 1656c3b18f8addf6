// Package authfront orchestrates sign-in, multi-factor authentication, and
// OAuth identity linking for a browser-resident application front end. It owns
// the composite auth state (session, MFA stage, in-flight linking attempt,
// durable flags) and exposes one pure decision function — the navigation
// guard — that gates every route change.
//
// The package is designed around full-page redirects: any operation can be cut
// short by the browser navigating away, so every fact that must survive a
// reload is persisted through [FlagStore] before the redirect is issued and
// reconciled again on the next [Engine.Initialize].
//
// # Architecture boundaries
//
// authfront is the public surface. It exposes [Engine], [Builder], [Config],
// the [Backend] contract, and value types (Session, UserRecord, MfaState,
// LinkingAttempt, Decision). Record encoding and token-claim extraction live
// under internal/ and are never exported. The actual auth service is reached
// only through [Backend]; package backend ships the HTTP implementation.
//
// # What this package must NOT do
//
//   - Talk to the auth service directly; every call goes through [Backend].
//   - Retry a failed backend call silently. Retries are explicit user actions.
//   - Treat a durable flag as a source of truth when it disagrees with the
//     live session. The backend wins and the flag is rewritten.
package authfront
