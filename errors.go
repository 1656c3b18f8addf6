package authfront

import "errors"

var (
	// ErrNoSuchAccount is returned when identity linking is started for an
	// email no account exists under.
	ErrNoSuchAccount = errors.New("no account exists for this email")
	// ErrInvalidOrExpiredCode is returned when the backend rejects a one-time
	// or MFA code. The caller may re-prompt without penalty.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	// ErrProviderConflict is returned when an OAuth identity collides with an
	// account that exists under a different provider.
	ErrProviderConflict = errors.New("account exists under a different provider")
	// ErrSessionExchangeFailed is returned when an authorization code could
	// not be exchanged for a session.
	ErrSessionExchangeFailed = errors.New("session exchange failed")
	// ErrBackendUnavailable is returned when the auth backend cannot be
	// reached or answers with a server error.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	// ErrMalformedCallback is returned for a returned redirect URL carrying
	// neither code, hash credentials, nor an error parameter.
	ErrMalformedCallback = errors.New("malformed sso callback")
	// ErrStaleLinkingAttempt is returned internally when a persisted linking
	// attempt is older than the configured TTL. It is discarded silently and
	// never surfaced to the user.
	ErrStaleLinkingAttempt = errors.New("stale linking attempt")

	// ErrEngineNotReady is returned when an Engine method runs before Build
	// wired its dependencies.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrNotInitialized is returned when the navigation guard is consulted
	// before Initialize completed. Initializing state must never produce a
	// redirect.
	ErrNotInitialized = errors.New("auth initialization not complete")
	// ErrNoLinkingAttempt is returned when a linking step is submitted while
	// no attempt is live in this tab.
	ErrNoLinkingAttempt = errors.New("no linking attempt in progress")
	// ErrLinkingStep is returned when a linking operation is invoked out of
	// order with respect to the persisted attempt step.
	ErrLinkingStep = errors.New("linking attempt is at a different step")
	// ErrMFANotRequired is returned when a verification code is submitted for
	// a session that never required MFA. Verification without a requirement
	// is rejected.
	ErrMFANotRequired = errors.New("mfa verification not required")
	// ErrNoSession is returned when an operation needs a live session and
	// none exists.
	ErrNoSession = errors.New("no active session")
	// ErrFlagBackend is returned when the flag storage backend fails.
	ErrFlagBackend = errors.New("flag storage unavailable")
)
