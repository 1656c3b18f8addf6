package internaldefs

import (
	"github.com/acrelle/authfront"
)

// CounterDef binds a counter ID to its stable exported name and help text.
//
// CounterDef instances are intended to be configured during initialization
// and then treated as immutable.
type CounterDef struct {
	ID   authfront.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in declaration order. Both
// exporters iterate this slice so metric names stay in lockstep.
var CounterDefs = []CounterDef{
	{ID: authfront.MetricSignInSuccess, Name: "authfront_signin_success_total", Help: "Successful password sign-ins."},
	{ID: authfront.MetricSignInFailure, Name: "authfront_signin_failure_total", Help: "Rejected password sign-ins."},
	{ID: authfront.MetricSignOut, Name: "authfront_signout_total", Help: "Explicit sign-outs."},
	{ID: authfront.MetricMFARequired, Name: "authfront_mfa_required_total", Help: "Sessions entering the unverified MFA stage."},
	{ID: authfront.MetricMFASuccess, Name: "authfront_mfa_success_total", Help: "Backend-confirmed MFA verifications."},
	{ID: authfront.MetricMFAFailure, Name: "authfront_mfa_failure_total", Help: "Backend-rejected MFA verification codes."},
	{ID: authfront.MetricLinkStarted, Name: "authfront_link_started_total", Help: "Identity-linking attempts started."},
	{ID: authfront.MetricLinkResumed, Name: "authfront_link_resumed_total", Help: "Fresh linking attempts resumed instead of restarted."},
	{ID: authfront.MetricLinkEmailVerified, Name: "authfront_link_email_verified_total", Help: "Linking attempts passing email verification."},
	{ID: authfront.MetricLinkCompleted, Name: "authfront_link_completed_total", Help: "Linking attempts reaching the terminal step."},
	{ID: authfront.MetricLinkExpired, Name: "authfront_link_expired_total", Help: "Linking attempts discarded past the TTL."},
	{ID: authfront.MetricLinkFailed, Name: "authfront_link_failed_total", Help: "Linking attempts entering the error step."},
	{ID: authfront.MetricLinkCodeRejected, Name: "authfront_link_code_rejected_total", Help: "Linking one-time codes rejected by the backend."},
	{ID: authfront.MetricCallbackError, Name: "authfront_callback_error_total", Help: "Callbacks carrying a provider error."},
	{ID: authfront.MetricCallbackMalformed, Name: "authfront_callback_malformed_total", Help: "Callbacks with no usable parameters."},
	{ID: authfront.MetricCodeExchangeSuccess, Name: "authfront_code_exchange_success_total", Help: "Successful code-for-session exchanges."},
	{ID: authfront.MetricCodeExchangeFailure, Name: "authfront_code_exchange_failure_total", Help: "Failed code-for-session exchanges."},
	{ID: authfront.MetricSessionPollTimeout, Name: "authfront_session_poll_timeout_total", Help: "Hash callbacks whose session never materialized in the bounded wait."},
	{ID: authfront.MetricGuardRedirect, Name: "authfront_guard_redirect_total", Help: "Non-allow navigation guard decisions."},
	{ID: authfront.MetricGuardForcedLogout, Name: "authfront_guard_forced_logout_total", Help: "Guard-forced sign-outs."},
	{ID: authfront.MetricRecoveryCompleted, Name: "authfront_recovery_completed_total", Help: "Linking attempts auto-completed at startup."},
	{ID: authfront.MetricRecoveryExpired, Name: "authfront_recovery_expired_total", Help: "Linking attempts auto-expired at startup."},
	{ID: authfront.MetricSessionRestored, Name: "authfront_session_restored_total", Help: "Startups served from the session mirror with the backend unreachable."},
}
